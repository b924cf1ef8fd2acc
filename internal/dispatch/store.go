package dispatch

import (
	"context"
	"sync"
)

// ProcessedStore remembers which notification ids were already handled.
type ProcessedStore interface {
	Seen(ctx context.Context, id int) (bool, error)
	MarkSeen(ctx context.Context, id int) error
}

// MemoryStore is a ProcessedStore that lives as long as the process.
type MemoryStore struct {
	mu  sync.Mutex
	ids map[int]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[int]struct{})}
}

func (m *MemoryStore) Seen(ctx context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *MemoryStore) MarkSeen(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = struct{}{}
	return nil
}
