package presence

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process. Used by tests and single-node dev.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Set(_ context.Context, userID string, rec Record) error {
	m.mu.Lock()
	m.records[userID] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[userID], nil
}
