package storage

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

func init() {
	Backends.MustRegister("fs", func() any { return &fsBackend{} })
}

// fsBackend keeps one job's artifacts in <root>/<jobID>/ on the local
// filesystem.
type fsBackend struct {
	dir string
}

func (b *fsBackend) Init(root, jobID string) error {
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "storage: create job directory %s", dir)
	}
	b.dir = dir
	return nil
}

func (b *fsBackend) Put(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(b.dir, name), data, 0o644); err != nil {
		return eris.Wrapf(err, "storage: write %s", name)
	}
	return nil
}

func (b *fsBackend) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", name)
	}
	return data, nil
}

func (b *fsBackend) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(b.dir, name))
	return err == nil
}

func (b *fsBackend) FullPath(name string) string {
	return filepath.Join(b.dir, name)
}
