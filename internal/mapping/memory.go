package mapping

import (
	"context"
	"sync"
)

// MemoryStore keeps mappings for the lifetime of the process. Entries are
// never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings: make(map[string]string),
	}
}

func (m *MemoryStore) Put(_ context.Context, project string, issueID uint64, experiment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[Key(project, issueID)] = experiment
	return nil
}

func (m *MemoryStore) Get(_ context.Context, project string, issueID uint64) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.mappings[Key(project, issueID)]
	return name, ok, nil
}

// Len returns the number of stored mappings.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
