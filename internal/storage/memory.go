package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// MemoryStorage is an in-memory Backend used by tests and the development
// preset, so stages can run without any storage provider configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

// Get returns a reader for the object at the given key.
func (m *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Put stores the object at the given key.
func (m *MemoryStorage) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object for %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

// StreamToDisk copies the object at key to a local file.
func (m *MemoryStorage) StreamToDisk(ctx context.Context, key, localPath string) error {
	r, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to stream %s to %s: %w", key, localPath, err)
	}
	return f.Close()
}

// UploadFile copies a local file to the object at key.
func (m *MemoryStorage) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return m.Put(ctx, key, f)
}

// Exists checks if an object exists at the given key.
func (m *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok, nil
}

// Keys returns every stored key. Test helper.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

var _ Backend = (*MemoryStorage)(nil)
