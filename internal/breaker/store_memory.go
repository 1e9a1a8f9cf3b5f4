package breaker

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu     sync.Mutex
	states map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]Snapshot{}}
}

func (m *MemoryStore) Load(_ context.Context, name string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[name]; ok {
		return s, nil
	}
	return Fresh(name), nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, prev, next Snapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.states[prev.Name]
	if !ok {
		stored = Fresh(prev.Name)
	}
	if stored.Version != prev.Version {
		return false, nil
	}
	m.states[prev.Name] = next
	return true, nil
}
