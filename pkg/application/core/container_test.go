package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(comps []Component) []string {
	out := make([]string, 0, len(comps))
	for _, c := range comps {
		out = append(out, c.Name())
	}
	return out
}

func TestContainer_SortByDependencies(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register("http_server", NewBaseComponent("http_server", "logging", "claim_service")))
	require.NoError(t, c.Register("claim_service", NewBaseComponent("claim_service", "task_dao")))
	require.NoError(t, c.Register("task_dao", NewBaseComponent("task_dao", "logging")))
	require.NoError(t, c.Register("logging", NewBaseComponent("logging")))

	ordered, err := c.ValidateDependencies()
	require.NoError(t, err)
	assert.Equal(t, []string{"logging", "task_dao", "claim_service", "http_server"}, names(ordered))
}

func TestContainer_MissingAndCycle(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register("a", NewBaseComponent("a", "ghost")))
	_, err := c.ValidateDependencies()
	assert.ErrorContains(t, err, "a -> [ghost]")

	c = NewContainer()
	require.NoError(t, c.Register("a", NewBaseComponent("a", "b")))
	require.NoError(t, c.Register("b", NewBaseComponent("b", "a")))
	_, err = c.ValidateDependencies()
	assert.ErrorContains(t, err, "circular dependency")
}

func TestContainer_RegisterResolve(t *testing.T) {
	c := NewContainer()
	require.Error(t, c.Register("nil", nil))
	require.NoError(t, c.Register("x", NewBaseComponent("x")))
	require.Error(t, c.Register("x", NewBaseComponent("x")))

	got, err := ResolveAs[*BaseComponent](c, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name())

	_, err = ResolveAs[*recordingComp](c, "x")
	assert.Error(t, err)
}

type recordingComp struct {
	*BaseComponent
	log     *[]string
	failing bool
}

func (r *recordingComp) Start(ctx context.Context) error {
	if r.failing {
		return errors.New("boom")
	}
	*r.log = append(*r.log, "start:"+r.Name())
	return r.BaseComponent.Start(ctx)
}

func (r *recordingComp) Stop(ctx context.Context) error {
	*r.log = append(*r.log, "stop:"+r.Name())
	return r.BaseComponent.Stop(ctx)
}

func TestLifecycle_StartStopOrder(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, c.Register("db", &recordingComp{BaseComponent: NewBaseComponent("db"), log: &log}))
	require.NoError(t, c.Register("svc", &recordingComp{BaseComponent: NewBaseComponent("svc", "db"), log: &log}))

	lm := NewLifecycleManager(c)
	require.NoError(t, lm.StartAll(context.Background()))
	lm.StopAll(context.Background())
	lm.StopAll(context.Background())

	assert.Equal(t, []string{"start:db", "start:svc", "stop:svc", "stop:db"}, log)
}

func TestLifecycle_RollbackOnFailure(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, c.Register("db", &recordingComp{BaseComponent: NewBaseComponent("db"), log: &log}))
	require.NoError(t, c.Register("svc", &recordingComp{BaseComponent: NewBaseComponent("svc", "db"), log: &log, failing: true}))

	err := NewLifecycleManager(c).StartAll(context.Background())
	require.ErrorContains(t, err, "svc")
	assert.Equal(t, []string{"start:db", "stop:db"}, log)
}
