package database

import (
	"context"
	"sync"
)

// MemoryRegistry is an UploadRegistry local to the process.
type MemoryRegistry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

var _ UploadRegistry = (*MemoryRegistry)(nil)

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{names: make(map[string]struct{})}
}

func (r *MemoryRegistry) Contains(ctx context.Context, fileName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[fileName]
	return ok, nil
}

func (r *MemoryRegistry) Add(ctx context.Context, fileName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[fileName]; ok {
		return false, nil
	}
	r.names[fileName] = struct{}{}
	return true, nil
}

func (r *MemoryRegistry) Remove(ctx context.Context, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, fileName)
	return nil
}

func (r *MemoryRegistry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[string]struct{})
	return nil
}
