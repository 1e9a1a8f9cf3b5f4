package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is process local.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: map[string][]time.Time{}}
}

func (m *MemoryStore) Append(_ context.Context, actor string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[actor]
	i := sort.Search(len(list), func(i int) bool { return list[i].After(at) })
	list = append(list, time.Time{})
	copy(list[i+1:], list[i:])
	list[i] = at
	m.events[actor] = list
	return nil
}

func (m *MemoryStore) Prune(_ context.Context, actor string, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[actor]
	i := sort.Search(len(list), func(i int) bool { return list[i].After(cutoff) })
	if i == len(list) {
		delete(m.events, actor)
		return nil
	}
	m.events[actor] = append([]time.Time(nil), list[i:]...)
	return nil
}

func (m *MemoryStore) Since(_ context.Context, actor string, cutoff time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.events[actor]
	i := sort.Search(len(list), func(i int) bool { return list[i].After(cutoff) })
	return append([]time.Time(nil), list[i:]...), nil
}
