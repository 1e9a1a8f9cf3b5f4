package breaker

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Group hands out one breaker per name over a shared store.
type Group struct {
	mu       sync.Mutex
	defaults Settings
	custom   map[string]Settings
	breakers map[string]*Breaker
	store    StateStore
	clock    clockwork.Clock
	onChange TransitionFunc
}

func NewGroup(defaults Settings, store StateStore, clock clockwork.Clock, onChange TransitionFunc) *Group {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Group{
		defaults: defaults,
		custom:   map[string]Settings{},
		breakers: map[string]*Breaker{},
		store:    store,
		clock:    clock,
		onChange: onChange,
	}
}

// Configure overrides settings for name. It only affects breakers not yet created.
func (g *Group) Configure(name string, s Settings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.custom[name] = s
}

func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[name]; ok {
		return b
	}
	s, ok := g.custom[name]
	if !ok {
		s = g.defaults
	}
	b := New(name, s, g.store, g.clock, g.onChange)
	g.breakers[name] = b
	return b
}

// Snapshots returns the state of every breaker this group has handed out, by name.
func (g *Group) Snapshots(ctx context.Context) ([]Snapshot, error) {
	g.mu.Lock()
	names := make([]string, 0, len(g.breakers))
	for n := range g.breakers {
		names = append(names, n)
	}
	g.mu.Unlock()
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, n := range names {
		s, err := g.store.Load(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
