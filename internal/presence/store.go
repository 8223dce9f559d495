package presence

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// BackendStore remembers which backend each identity used last
type BackendStore interface {
	LastBackend(ctx context.Context, id uuid.UUID) (string, bool, error)
	SetLastBackend(ctx context.Context, id uuid.UUID, backend string) error
}

// MemoryStore is a process-local BackendStore
type MemoryStore struct {
	mu   sync.RWMutex
	last map[uuid.UUID]string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[uuid.UUID]string)}
}

func (m *MemoryStore) LastBackend(_ context.Context, id uuid.UUID) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.last[id]
	return b, ok, nil
}

func (m *MemoryStore) SetLastBackend(_ context.Context, id uuid.UUID, backend string) error {
	m.mu.Lock()
	m.last[id] = backend
	m.mu.Unlock()
	return nil
}
