package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/config"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type fakeComp struct {
	*core.BaseComponent
	Store core.Component `infra:"dep:store"`
}

func withBuilders(t *testing.T) {
	t.Helper()
	saved := builders
	builders = nil
	t.Cleanup(func() { builders = saved })
}

func TestBuildAndRegisterAll_OrdersByDeps(t *testing.T) {
	withBuilders(t)
	var order []string
	RegisterWithDeps("service", []string{"store"}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		_, err := c.Resolve("store")
		require.NoError(t, err)
		order = append(order, "service")
		return true, core.NewBaseComponent("service"), nil
	})
	Register("store", func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		order = append(order, "store")
		return true, core.NewBaseComponent("store"), nil
	})
	Register("disabled", func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return false, nil, nil
	})

	c := core.NewContainer()
	require.NoError(t, BuildAndRegisterAll(&config.AppConfig{}, c))
	assert.Equal(t, []string{"store", "service"}, order)
	_, err := c.Resolve("disabled")
	assert.Error(t, err)
}

func TestBuildAndRegisterAll_AutoInfersNameAndDeps(t *testing.T) {
	withBuilders(t)
	RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, &fakeComp{BaseComponent: core.NewBaseComponent("consumer")}, nil
	})
	Register("store", func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, core.NewBaseComponent("store"), nil
	})

	c := core.NewContainer()
	require.NoError(t, BuildAndRegisterAll(&config.AppConfig{}, c))
	b := findBuilder("consumer")
	require.NotNil(t, b)
	assert.Equal(t, []string{"store"}, b.Deps)
}

func TestTopoSortBuilders_Cycle(t *testing.T) {
	_, err := topoSortBuilders([]*Builder{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b", Deps: []string{"a"}},
	})
	assert.ErrorContains(t, err, "cyclic")
}

func TestExtendRuntimeDependencies(t *testing.T) {
	withBuilders(t)
	Register("worker", func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		return true, core.NewBaseComponent("worker"), nil
	})
	ExtendRuntimeDependencies("worker", "redis")

	c := core.NewContainer()
	require.NoError(t, BuildAndRegisterAll(&config.AppConfig{}, c))
	comp, err := c.Resolve("worker")
	require.NoError(t, err)
	assert.Contains(t, comp.Dependencies(), "redis")
	_ = comp.Stop(context.Background())
}
