package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrNotStored is returned by MemoryStore.Get for unknown keys.
var ErrNotStored = errors.New("artifact not stored")

// MemoryStore is an in-memory BlobStore used in tests and for cache-less
// development setups.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, 0, ErrNotStored
	}
	return io.NopCloser(bytes.NewReader(blob)), int64(len(blob)), nil
}

// Put drains r fully before the blob becomes visible; a read failure stores
// nothing.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ string) error {
	blob, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = blob
	return nil
}

// Len reports the number of stored artifacts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
