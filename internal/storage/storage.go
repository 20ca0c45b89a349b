// Package storage persists run artifacts under a per-job directory. A
// Manager wraps one backend (local filesystem or in-memory) chosen by the
// storage URL scheme and offers typed helpers for the formats the pipeline
// writes: JSON, YAML, CSV, and parquet.
package storage

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

// jobPrefix namespaces every job directory so a shared storage root stays
// recognizable and sweepable.
const jobPrefix = "job-impact-engine-"

// NewJobID mints a fresh job identifier.
func NewJobID() string {
	return jobPrefix + uuid.NewString()
}

// Backend stores named artifacts for exactly one job. Init is called once
// by the Manager before any other method.
type Backend interface {
	Init(root, jobID string) error
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Exists(name string) bool
	FullPath(name string) string
}

// Backends holds every registered storage backend factory, keyed by URL
// scheme.
var Backends = registry.New[Backend]("storage backend")

// Manager is the pipeline's handle on one job's artifact store.
type Manager struct {
	backend Backend
	jobID   string
}

// NewManager resolves storageURL to a backend and prepares the job
// directory. A bare path (no scheme) means the local filesystem; file://
// is an alias for it.
func NewManager(storageURL, jobID string) (*Manager, error) {
	if jobID == "" {
		return nil, eris.New("storage: job id is required")
	}
	scheme, root := splitURL(storageURL)
	backend, err := Backends.Get(scheme)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(root, jobID); err != nil {
		return nil, err
	}
	return &Manager{backend: backend, jobID: jobID}, nil
}

func splitURL(storageURL string) (scheme, root string) {
	if storageURL == "" {
		return "fs", "."
	}
	if i := strings.Index(storageURL, "://"); i >= 0 {
		scheme, root = storageURL[:i], storageURL[i+3:]
		if scheme == "file" {
			scheme = "fs"
		}
		if root == "" {
			root = "."
		}
		return scheme, root
	}
	return "fs", storageURL
}

// JobID returns the identifier the manager was created with.
func (m *Manager) JobID() string {
	return m.jobID
}

// Exists reports whether the named artifact has been written.
func (m *Manager) Exists(name string) bool {
	return m.backend.Exists(name)
}

// FullPath returns the backend's addressable location for name. The
// artifact does not have to exist yet.
func (m *Manager) FullPath(name string) string {
	return m.backend.FullPath(name)
}

// WriteBytes stores raw bytes under name.
func (m *Manager) WriteBytes(name string, data []byte) error {
	return m.backend.Put(name, data)
}

// ReadBytes loads the named artifact.
func (m *Manager) ReadBytes(name string) ([]byte, error) {
	return m.backend.Get(name)
}

// WriteJSON stores v as two-space indented JSON.
func (m *Manager) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "storage: marshal %s", name)
	}
	return m.backend.Put(name, append(data, '\n'))
}

// ReadJSON loads the named artifact into v.
func (m *Manager) ReadJSON(name string, v any) error {
	data, err := m.backend.Get(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "storage: unmarshal %s", name)
	}
	return nil
}

// WriteYAML stores v as YAML.
func (m *Manager) WriteYAML(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "storage: marshal %s", name)
	}
	return m.backend.Put(name, data)
}

// ReadYAML loads the named artifact into v.
func (m *Manager) ReadYAML(name string, v any) error {
	data, err := m.backend.Get(name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "storage: unmarshal %s", name)
	}
	return nil
}

// WriteCSV stores the frame as a CSV artifact.
func (m *Manager) WriteCSV(name string, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.WriteCSV(&buf, f); err != nil {
		return eris.Wrapf(err, "storage: encode %s", name)
	}
	return m.backend.Put(name, buf.Bytes())
}

// ReadCSV loads the named CSV artifact into a frame.
func (m *Manager) ReadCSV(name string) (*frame.Frame, error) {
	data, err := m.backend.Get(name)
	if err != nil {
		return nil, err
	}
	f, err := frame.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "storage: decode %s", name)
	}
	return f, nil
}

// WriteParquet stores the frame as a parquet artifact.
func (m *Manager) WriteParquet(name string, f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.WriteParquet(&buf, f); err != nil {
		return eris.Wrapf(err, "storage: encode %s", name)
	}
	return m.backend.Put(name, buf.Bytes())
}

// ReadParquet loads the named parquet artifact into a frame.
func (m *Manager) ReadParquet(name string) (*frame.Frame, error) {
	data, err := m.backend.Get(name)
	if err != nil {
		return nil, err
	}
	f, err := frame.ReadParquet(data)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: decode %s", name)
	}
	return f, nil
}
