package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory ContentStore for tests. Put and Corrupt exist so
// tests can stage content and then tamper with it out-of-band, the way a
// storage-layer compromise would.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores content under locator and returns its hash.
func (s *MemoryStore) Put(locator string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[locator] = cp
	return hashBytes(data)
}

// Corrupt overwrites stored content without any record, simulating
// storage-layer tampering.
func (s *MemoryStore) Corrupt(locator string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[locator] = data
}

// Read implements ContentStore.
func (s *MemoryStore) Read(_ context.Context, locator string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, locator)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Hash implements ContentStore.
func (s *MemoryStore) Hash(data []byte) string {
	return hashBytes(data)
}
