package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Container holds the registered components by name.
type Container struct {
	mu         sync.RWMutex
	components map[string]Component
	configs    map[string]any
}

func NewContainer() *Container {
	return &Container{
		components: make(map[string]Component),
		configs:    make(map[string]any),
	}
}

func (c *Container) Register(name string, component Component) error {
	if component == nil {
		return fmt.Errorf("component %s is nil", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	c.components[name] = component
	return nil
}

func (c *Container) Resolve(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	component, exists := c.components[name]
	if !exists {
		return nil, fmt.Errorf("component %s not found", name)
	}
	return component, nil
}

// ResolveAs resolves a component and asserts it to T.
func ResolveAs[T any](c *Container, name string) (T, error) {
	var zero T
	comp, err := c.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := comp.(T)
	if !ok {
		return zero, fmt.Errorf("component %s has type %T, want %T", name, comp, zero)
	}
	return typed, nil
}

func (c *Container) ListRegistered() map[string]Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Component, len(c.components))
	for name, comp := range c.components {
		out[name] = comp
	}
	return out
}

func (c *Container) SetConfig(name string, config any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[name] = config
}

func (c *Container) GetConfig(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	config, ok := c.configs[name]
	return config, ok
}

// Replace swaps a registered component that has not been started. Used by tests.
func (c *Container) Replace(name string, component Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, exists := c.components[name]
	if !exists {
		return fmt.Errorf("component %s not registered", name)
	}
	if existing.IsActive() {
		return fmt.Errorf("component %s is active; cannot replace", name)
	}
	c.components[name] = component
	return nil
}

// SortComponentsByDependencies returns components in start order (dependencies first).
// Ties are broken by name so the order is stable across runs.
func (c *Container) SortComponentsByDependencies() ([]Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.components))
	ordered := make([]Component, 0, len(c.components))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("circular dependency: %s -> %s", strings.Join(path, " -> "), name)
		case done:
			return nil
		}
		comp, ok := c.components[name]
		if !ok {
			return fmt.Errorf("component %s not found (required by %s)", name, last(path))
		}
		state[name] = visiting
		deps := comp.Dependencies()
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, comp)
		return nil
	}

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// ValidateDependencies reports every missing dependency at once, then checks for cycles.
func (c *Container) ValidateDependencies() ([]Component, error) {
	c.mu.RLock()
	var missing []string
	for name, comp := range c.components {
		var lack []string
		for _, dep := range comp.Dependencies() {
			if _, ok := c.components[dep]; !ok {
				lack = append(lack, dep)
			}
		}
		if len(lack) > 0 {
			missing = append(missing, fmt.Sprintf("%s -> [%s]", name, strings.Join(lack, ",")))
		}
	}
	c.mu.RUnlock()
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing component dependencies: %s", strings.Join(missing, "; "))
	}
	return c.SortComponentsByDependencies()
}

func last(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return path[len(path)-1]
}
