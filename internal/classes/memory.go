package classes

import (
	"context"
	"sync"
)

type MemoryDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewMemoryDirectory(seed map[string]string) *MemoryDirectory {
	names := make(map[string]string, len(seed))
	for k, v := range seed {
		names[k] = v
	}
	return &MemoryDirectory{names: names}
}

func (d *MemoryDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[classID]
	if !ok {
		return "", ErrClassNotFound
	}
	return name, nil
}

func (d *MemoryDirectory) SetClassName(ctx context.Context, classID, name string) error {
	d.mu.Lock()
	d.names[classID] = name
	d.mu.Unlock()
	return nil
}
