package storage

import (
	"path"
	"sync"

	"github.com/rotisserie/eris"
)

func init() {
	Backends.MustRegister("mem", func() any { return &memBackend{} })
}

// memBackend keeps artifacts in process memory. It backs tests and dry
// runs where nothing should touch the filesystem.
type memBackend struct {
	mu    sync.RWMutex
	jobID string
	blobs map[string][]byte
}

func (b *memBackend) Init(_, jobID string) error {
	b.jobID = jobID
	b.blobs = make(map[string][]byte)
	return nil
}

func (b *memBackend) Put(name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	b.blobs[name] = copied
	return nil
}

func (b *memBackend) Get(name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[name]
	if !ok {
		return nil, eris.Errorf("storage: read %s: artifact not found", name)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (b *memBackend) Exists(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[name]
	return ok
}

func (b *memBackend) FullPath(name string) string {
	return "mem://" + path.Join(b.jobID, name)
}
