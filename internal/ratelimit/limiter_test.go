package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, p Policy, store Store) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(epoch)
	l, err := NewLimiter(p, store, clk)
	require.NoError(t, err)
	return l, clk
}

func TestLimiter_LimitReachedThenFreed(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter(t, Policy{{Name: "hour", Size: time.Hour, Limit: 3}}, NewMemoryStore())

	for i := 0; i < 3; i++ {
		ok, err := l.CanProceed(ctx, "acct")
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.RecordEvent(ctx, "acct"))
		clk.Advance(time.Minute)
	}
	d, err := l.Check(ctx, "acct")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// oldest event at epoch leaves the window at epoch+1h; now is epoch+3m
	assert.Equal(t, 57*time.Minute, d.RetryAfter)

	clk.Advance(57 * time.Minute)
	ok, err := l.CanProceed(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiter_StrictBoundary(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter(t, Policy{{Name: "minute", Size: time.Minute, Limit: 1}}, NewMemoryStore())

	require.NoError(t, l.RecordEvent(ctx, "a"))
	clk.Advance(time.Minute - time.Microsecond)
	ok, _ := l.CanProceed(ctx, "a")
	assert.False(t, ok, "event still inside window")

	clk.Advance(time.Microsecond)
	ok, _ = l.CanProceed(ctx, "a")
	assert.True(t, ok, "event exactly W old is outside")
}

func TestLimiter_WindowsAreANDed(t *testing.T) {
	ctx := context.Background()
	l, clk := newLimiter(t, ReferencePolicy(), NewMemoryStore())

	require.NoError(t, l.RecordEvent(ctx, "a"))
	require.NoError(t, l.RecordEvent(ctx, "a"))
	ok, _ := l.CanProceed(ctx, "a")
	assert.False(t, ok, "minute window full")

	clk.Advance(time.Minute)
	usage, err := l.StatusOf(ctx, "a")
	require.NoError(t, err)
	require.Len(t, usage, 4)
	assert.Equal(t, "minute", usage[0].Name)
	assert.Equal(t, 0, usage[0].Used)
	assert.Equal(t, 2, usage[1].Used)
	assert.Equal(t, 18, usage[1].Remaining)
}

func TestLimiter_PrunesToWidestWindow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, clk := newLimiter(t, Policy{{Name: "minute", Size: time.Minute, Limit: 5}, {Name: "hour", Size: time.Hour, Limit: 50}}, store)

	require.NoError(t, l.RecordEvent(ctx, "a"))
	clk.Advance(30 * time.Minute)
	require.NoError(t, l.RecordEvent(ctx, "a"))
	clk.Advance(40 * time.Minute)
	_, err := l.Check(ctx, "a")
	require.NoError(t, err)

	left, _ := store.Since(ctx, "a", time.Time{})
	assert.Equal(t, []time.Time{epoch.Add(30 * time.Minute)}, left)
}

func TestPolicy_Validate(t *testing.T) {
	assert.Error(t, Policy{}.Validate())
	assert.Error(t, Policy{{Name: "m", Size: time.Minute, Limit: 0}}.Validate())
	assert.Error(t, Policy{{Name: "m", Size: time.Minute, Limit: 1}, {Name: "m", Size: time.Hour, Limit: 1}}.Validate())
	assert.Nil(t, CapPolicy(0, 0))
	assert.Len(t, CapPolicy(10, 50), 2)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "test:", time.Hour)
	l, clk := newLimiter(t, Policy{{Name: "minute", Size: time.Minute, Limit: 2}}, store)

	require.NoError(t, l.RecordEvent(ctx, "a"))
	require.NoError(t, l.RecordEvent(ctx, "a"))
	ok, err := l.CanProceed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(time.Minute)
	ok, err = l.CanProceed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := client.ZCard(ctx, "test:ratelimit:a").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "boundary events pruned")
}
