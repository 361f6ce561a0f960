package summary

import (
	"context"
	"sync"
)

// MemoryStore keeps summaries in process. Update holds the store lock while
// mutate runs, so writers to the same key are serialized.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*GradeSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*GradeSummary)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*GradeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[key].Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, key string, mutate MutateFunc) (*GradeSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.items[key].Clone()
	var version int64
	if cur != nil {
		version = cur.Version
	}
	next, err := mutate(cur)
	if err != nil {
		return nil, err
	}
	next.Version = version + 1
	m.items[key] = next.Clone()
	return next, nil
}
