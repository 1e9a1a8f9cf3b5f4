package dao

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/gormx"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db        *DB
	tasks     *taskDaoImpl
	campaigns *campaignDaoImpl
	runners   *runnerDaoImpl
	progress  *progressDaoImpl
	targets   *targetDaoImpl
	rates     *rateEventDaoImpl
	breakers  *breakerStateDaoImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormx.NewLogger("test", "silent", 0)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&model.Campaign{}, &model.Task{}, &model.Runner{}, &model.ProgressEntry{},
		&model.Target{}, &model.RateEvent{}, &model.BreakerStateRow{}))

	db := NewDBFromGorm(gdb)
	f := &fixture{
		db:        db,
		tasks:     NewTaskDao(TaskDaoOptions{CASRetries: 5, CandidateBatch: 4}).(*taskDaoImpl),
		campaigns: NewCampaignDao().(*campaignDaoImpl),
		runners:   NewRunnerDao().(*runnerDaoImpl),
		progress:  NewProgressDao().(*progressDaoImpl),
		targets:   NewTargetDao().(*targetDaoImpl),
		rates:     NewRateEventDao().(*rateEventDaoImpl),
		breakers:  NewBreakerStateDao().(*breakerStateDaoImpl),
	}
	f.tasks.DB, f.campaigns.DB, f.runners.DB, f.progress.DB = db, db, db, db
	f.targets.DB, f.rates.DB, f.breakers.DB = db, db, db
	ctx := context.Background()
	for _, s := range []interface{ Start(context.Context) error }{f.tasks, f.campaigns, f.runners, f.progress, f.targets, f.rates, f.breakers} {
		require.NoError(t, s.Start(ctx))
	}
	return f
}

func (f *fixture) campaign(t *testing.T, status bizConsts.CampaignStatus) *model.Campaign {
	t.Helper()
	c := &model.Campaign{Name: "c", Status: status, SenderAccount: "acct-1", Channel: "linkedin"}
	require.NoError(t, f.campaigns.Create(context.Background(), c))
	return c
}

func (f *fixture) enqueue(t *testing.T, c *model.Campaign, runAfter time.Time, targets ...string) []*model.Task {
	t.Helper()
	tasks, err := f.tasks.Enqueue(context.Background(), c.ID, targets, runAfter)
	require.NoError(t, err)
	return tasks
}

func TestClaimNext_OldestEligibleFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "late")
	f.enqueue(t, c, t0.Add(-time.Hour), "early")
	f.enqueue(t, c, t0.Add(time.Hour), "future")

	got, err := f.tasks.ClaimNext(ctx, "r1", t0, 90*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "early", got.TargetID)
	assert.Equal(t, bizConsts.TaskInProgress, got.Status)
	assert.Equal(t, "r1", *got.LockedBy)
	assert.NotEmpty(t, *got.LeaseToken)

	stored, err := f.tasks.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, stored.HeldBy("r1", *got.LeaseToken))

	got, err = f.tasks.ClaimNext(ctx, "r1", t0, 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", got.TargetID)

	got, err = f.tasks.ClaimNext(ctx, "r1", t0, 90*time.Second)
	require.NoError(t, err)
	assert.Nil(t, got, "future task is not eligible yet")
}

func TestClaimNext_SkipsNonClaimableCampaigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range bizConsts.NonClaimableCampaignStatuses {
		f.enqueue(t, f.campaign(t, s), t0.Add(-time.Hour), string(s))
	}
	got, err := f.tasks.ClaimNext(ctx, "r1", t0, 90*time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := f.tasks.CountQueued(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClaimNext_ConcurrentRunnersNeverShareATask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "only")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(runner string) {
			defer wg.Done()
			got, err := f.tasks.ClaimNext(ctx, runner, t0, 90*time.Second)
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				wins = append(wins, runner)
				mu.Unlock()
			}
		}(fmt.Sprintf("r%d", i))
	}
	wg.Wait()
	assert.Len(t, wins, 1)
}

func TestClaimNext_ReclaimsExpiredLeaseKeepingAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "x")

	first, err := f.tasks.ClaimNext(ctx, "r1", t0, 90*time.Second)
	require.NoError(t, err)
	require.NoError(t, f.tasks.db.Model(&model.Task{}).Where("id = ?", first.ID).Update("attempt", 2).Error)

	none, err := f.tasks.ClaimNext(ctx, "r2", t0.Add(89*time.Second), 90*time.Second)
	require.NoError(t, err)
	assert.Nil(t, none, "lease still live")

	second, err := f.tasks.ClaimNext(ctx, "r2", t0.Add(90*time.Second), 90*time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempt)
	assert.NotEqual(t, *first.LeaseToken, *second.LeaseToken)

	// the stale holder can no longer finish the task
	first.Attempt = 2
	assert.ErrorIs(t, f.tasks.MarkSucceeded(ctx, first, t0.Add(91*time.Second)), ErrLeaseLost)
	require.NoError(t, f.tasks.MarkSucceeded(ctx, second, t0.Add(91*time.Second)))
}

func TestGuardedTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "a", "b", "c")

	a, _ := f.tasks.ClaimNext(ctx, "r1", t0, time.Minute)
	b, _ := f.tasks.ClaimNext(ctx, "r1", t0, time.Minute)
	cc, _ := f.tasks.ClaimNext(ctx, "r1", t0, time.Minute)

	require.NoError(t, f.tasks.MarkDeferred(ctx, a, 1, t0.Add(20*time.Minute), "timeout", t0))
	require.NoError(t, f.tasks.MarkFailed(ctx, b, 3, "blocked", t0))
	require.NoError(t, f.tasks.Release(ctx, cc, t0.Add(time.Minute), t0))

	stored, err := f.tasks.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, bizConsts.TaskDeferred, stored.Status)
	assert.Equal(t, 1, stored.Attempt)
	assert.Nil(t, stored.LockedBy)
	assert.Equal(t, "timeout", *stored.LastError)

	stored, _ = f.tasks.Get(ctx, b.ID)
	assert.Equal(t, bizConsts.TaskFailed, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	stored, _ = f.tasks.Get(ctx, cc.ID)
	assert.Equal(t, bizConsts.TaskQueued, stored.Status)
	assert.Equal(t, 0, stored.Attempt)

	// a finished task cannot be finished again
	assert.ErrorIs(t, f.tasks.MarkSucceeded(ctx, b, t0), ErrLeaseLost)

	counts, err := f.tasks.StatusCounts(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCounts{"queued": 1, "in_progress": 0, "succeeded": 0, "failed": 1, "deferred": 1}, counts)
}

func TestPromoteDeferredAndReclaimExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "a", "b")

	a, _ := f.tasks.ClaimNext(ctx, "r1", t0, time.Minute)
	b, _ := f.tasks.ClaimNext(ctx, "r2", t0, time.Minute)
	require.NoError(t, f.tasks.MarkDeferred(ctx, a, 1, t0.Add(10*time.Minute), "x", t0))

	n, err := f.tasks.PromoteDeferred(ctx, t0.Add(9*time.Minute), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = f.tasks.PromoteDeferred(ctx, t0.Add(10*time.Minute), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	held, err := f.tasks.CountHeldBy(ctx, "r2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, held)

	renewed, err := f.tasks.RenewLeases(ctx, "r2", t0.Add(50*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, renewed)

	n, err = f.tasks.ReclaimExpired(ctx, t0.Add(time.Minute), time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, n, "renewed lease is live")

	n, err = f.tasks.ReclaimExpired(ctx, t0.Add(110*time.Second), time.Minute, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, _ := f.tasks.Get(ctx, b.ID)
	assert.Equal(t, bizConsts.TaskQueued, stored.Status)
	assert.Nil(t, stored.LockedBy)
}

func TestReconcileCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, bizConsts.CampaignActive)
	f.enqueue(t, c, t0.Add(-time.Minute), "a")

	status, changed, err := f.campaigns.ReconcileCompletion(ctx, c.ID, t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, bizConsts.CampaignActive, status)

	a, _ := f.tasks.ClaimNext(ctx, "r1", t0, time.Minute)
	require.NoError(t, f.tasks.MarkSucceeded(ctx, a, t0))

	status, changed, err = f.campaigns.ReconcileCompletion(ctx, c.ID, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, bizConsts.CampaignCompleted, status)

	// idempotent
	status, changed, err = f.campaigns.ReconcileCompletion(ctx, c.ID, t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, bizConsts.CampaignCompleted, status)

	got, err := f.campaigns.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)

	// new work reopens it
	f.enqueue(t, c, t0, "b")
	got, _ = f.campaigns.Get(ctx, c.ID)
	assert.Equal(t, bizConsts.CampaignActive, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestReconcileCompletion_IgnoresPausedAndDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []bizConsts.CampaignStatus{bizConsts.CampaignDraft, bizConsts.CampaignPaused} {
		c := f.campaign(t, s)
		status, changed, err := f.campaigns.ReconcileCompletion(ctx, c.ID, t0)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, s, status)
	}
}

func TestRunnerUpsertAndStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.runners.Upsert(ctx, &model.Runner{ID: "r1", Status: bizConsts.RunnerIdle, LastHeartbeatAt: t0}))
	require.NoError(t, f.runners.Upsert(ctx, &model.Runner{ID: "r1", Status: bizConsts.RunnerBusy, MetricsJSON: `{"sent":3}`, LastHeartbeatAt: t0.Add(time.Minute)}))

	r, err := f.runners.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, bizConsts.RunnerBusy, r.Status)
	assert.JSONEq(t, `{"sent":3}`, r.MetricsJSON)

	n, err := f.runners.MarkStale(ctx, t0.Add(2*time.Minute), t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	list, err := f.runners.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bizConsts.RunnerOffline, list[0].Status)
}

func TestProgressAndTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.progress.Append(ctx, &model.ProgressEntry{TaskID: 7, RunnerID: "r1", Stage: "open_profile", Status: "ok"}))
	require.NoError(t, f.progress.Append(ctx, &model.ProgressEntry{TaskID: 7, RunnerID: "r1", Stage: "send", Status: "ok"}))
	entries, err := f.progress.ListByTask(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "send", entries[1].Stage)

	require.NoError(t, f.targets.db.Create(&model.Target{ID: "t1", DisplayName: "Ada"}).Error)
	require.NoError(t, f.targets.MarkContacted(ctx, "t1", t0))
	tg, err := f.targets.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tg.LastContacted)
	assert.True(t, tg.LastContacted.Equal(t0))
	assert.True(t, IsNotFound(f.targets.MarkContacted(ctx, "missing", t0)))
}

func TestRateEventStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []time.Duration{0, 30 * time.Second, 60 * time.Second} {
		require.NoError(t, f.rates.Append(ctx, "acct", t0.Add(d)))
	}
	got, err := f.rates.Since(ctx, "acct", t0)
	require.NoError(t, err)
	require.Len(t, got, 2, "cutoff is exclusive")
	assert.True(t, got[0].Equal(t0.Add(30*time.Second)))

	require.NoError(t, f.rates.Prune(ctx, "acct", t0.Add(30*time.Second)))
	got, err = f.rates.Since(ctx, "acct", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestBreakerStateStore_CompareAndSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.breakers.Load(ctx, "channel:linkedin")
	require.NoError(t, err)
	assert.Equal(t, breaker.Fresh("channel:linkedin"), s)

	next := s
	next.State, next.ConsecutiveFailures, next.OpenedAt, next.Version = breaker.StateOpen, 5, t0, 1
	ok, err := f.breakers.CompareAndSwap(ctx, s, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.breakers.CompareAndSwap(ctx, s, next)
	require.NoError(t, err)
	assert.False(t, ok, "second insert from the same version loses")

	loaded, err := f.breakers.Load(ctx, "channel:linkedin")
	require.NoError(t, err)
	if diff := cmp.Diff(next, loaded, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Fatalf("loaded snapshot mismatch (-want +got):\n%s", diff)
	}

	closed := loaded
	closed.State, closed.Version = breaker.StateClosed, 2
	ok, err = f.breakers.CompareAndSwap(ctx, loaded, closed)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.breakers.CompareAndSwap(ctx, loaded, closed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait", fmt.Errorf("claim: %w", &mysql.MySQLError{Number: 1205}), true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg nowait", &pgconn.PgError{Code: "55P03"}, true},
		{"pg unique", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
