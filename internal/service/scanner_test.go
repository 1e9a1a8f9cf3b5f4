package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

func TestDeferredPromoter_Loop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t)
	ctx := context.Background()
	h.tasks.add(1, "a", t0)
	ct := h.claim(t, "r1")
	_, err := h.completes.Complete(ctx, "r1", CompleteRequest{TaskID: ct.ID, Outcome: bizConsts.OutcomeFailure})
	require.NoError(t, err)

	p := NewDeferredPromoter(15*time.Second, 10, h.clock)
	p.Tasks = h.tasks
	require.NoError(t, p.Start(ctx))

	bctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(bctx, 1))

	h.clock.Advance(15 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, bizConsts.TaskDeferred, h.tasks.get(ct.ID).Status, "not due yet")

	h.clock.Advance(20 * time.Minute)
	require.Eventually(t, func() bool { return h.tasks.get(ct.ID).Status == bizConsts.TaskQueued }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.tasks.get(ct.ID).Attempt)

	require.NoError(t, p.Stop(ctx))
}

func TestDeferredPromoter_ScanDrainsBatches(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 7; i++ {
		task := h.tasks.add(1, "t", t0)
		h.tasks.mu.Lock()
		h.tasks.tasks[task.ID].Status = bizConsts.TaskDeferred
		h.tasks.mu.Unlock()
	}
	p := NewDeferredPromoter(time.Second, 3, h.clock)
	p.Tasks = h.tasks
	p.Scan(context.Background())
	n, _ := h.tasks.CountQueued(context.Background(), t0)
	assert.EqualValues(t, 7, n)
}

func TestLeaseSweeper_ReclaimsKeepingAttempt(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	h := newHarness(t)
	ctx := context.Background()
	task := h.tasks.add(1, "a", t0)
	h.tasks.mu.Lock()
	h.tasks.tasks[task.ID].Attempt = 2
	h.tasks.mu.Unlock()
	h.claim(t, "r1")
	require.NoError(t, h.runners.Upsert(ctx, &model.Runner{ID: "r1", Status: bizConsts.RunnerBusy, LastHeartbeatAt: t0}))

	s := NewLeaseSweeper(30*time.Second, 90*time.Second, 100, h.clock)
	s.Tasks, s.Runners = h.tasks, h.runners
	require.NoError(t, s.Start(ctx))
	bctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(bctx, 1))

	h.clock.Advance(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, bizConsts.TaskInProgress, h.tasks.get(task.ID).Status)

	h.clock.Advance(90 * time.Second)
	require.Eventually(t, func() bool { return h.tasks.get(task.ID).Status == bizConsts.TaskQueued }, time.Second, 5*time.Millisecond)
	stored := h.tasks.get(task.ID)
	assert.Equal(t, 2, stored.Attempt)
	assert.Nil(t, stored.LockedBy)
	require.Eventually(t, func() bool {
		r, _ := h.runners.Get(ctx, "r1")
		return r.Status == bizConsts.RunnerOffline
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")
}
