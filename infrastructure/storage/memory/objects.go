package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ahrav/go-verity/internal/ports"
)

var _ ports.ObjectStore = (*ObjectStore)(nil)

// ObjectStore holds object bodies keyed by path.
type ObjectStore struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	downloads map[string]int
}

// NewObjectStore creates an empty object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects:   make(map[string][]byte),
		downloads: make(map[string]int),
	}
}

// Put stores data under path.
func (o *ObjectStore) Put(path string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[path] = slices.Clone(data)
}

// Download implements ports.ObjectStore.
func (o *ObjectStore) Download(_ context.Context, path string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads[path]++
	data, ok := o.objects[path]
	if !ok {
		return nil, ports.NewObjectStoreError("memory", path, ports.ErrObjectNotFound)
	}
	return slices.Clone(data), nil
}

// Downloads reports how many times path was requested.
func (o *ObjectStore) Downloads(path string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.downloads[path]
}
