package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
)

// ticker runs scan every interval until stopped.
type ticker struct {
	interval time.Duration
	clock    clockwork.Clock
	scan     func(ctx context.Context)
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func (t *ticker) start() {
	// lifecycle start ctx is cancelled after startup, so the loop gets its own
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go t.loop(loopCtx)
}

func (t *ticker) stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *ticker) loop(ctx context.Context) {
	defer t.wg.Done()
	tk := t.clock.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.Chan():
			t.scan(ctx)
		}
	}
}

// DeferredPromoter flips due deferred tasks back to queued.
type DeferredPromoter struct {
	*core.BaseComponent
	Tasks   dao.TaskDao      `infra:"dep:task_dao"`
	Metrics *metrics.Metrics `infra:"dep:outreach_metrics?"`

	batch int
	clock clockwork.Clock
	tick  *ticker
}

func NewDeferredPromoter(interval time.Duration, batch int, clock clockwork.Clock) *DeferredPromoter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batch <= 0 {
		batch = 500
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p := &DeferredPromoter{BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_PROMOTER), batch: batch, clock: clock}
	p.tick = &ticker{interval: interval, clock: clock, scan: p.Scan}
	return p
}

func (p *DeferredPromoter) Start(ctx context.Context) error {
	if p.IsActive() {
		return nil
	}
	if err := p.BaseComponent.Start(ctx); err != nil {
		return err
	}
	p.tick.start()
	return nil
}

func (p *DeferredPromoter) Stop(ctx context.Context) error {
	if !p.IsActive() {
		return nil
	}
	p.tick.stop()
	return p.BaseComponent.Stop(ctx)
}

// Scan promotes until a batch comes back short.
func (p *DeferredPromoter) Scan(ctx context.Context) {
	now := p.clock.Now().UTC()
	var total int64
	for ctx.Err() == nil {
		n, err := p.Tasks.PromoteDeferred(ctx, now, p.batch)
		if err != nil {
			logging.Error(ctx, "deferred promoter scan failed: "+err.Error())
			break
		}
		total += n
		if n < int64(p.batch) {
			break
		}
	}
	if total > 0 {
		p.Metrics.Scanned("promoter", total)
		logging.Infof(ctx, "promoted %d deferred tasks", total)
	}
}

// LeaseSweeper resets expired leases to queued and marks silent runners offline.
type LeaseSweeper struct {
	*core.BaseComponent
	Tasks   dao.TaskDao      `infra:"dep:task_dao"`
	Runners dao.RunnerDao    `infra:"dep:runner_dao"`
	Metrics *metrics.Metrics `infra:"dep:outreach_metrics?"`

	leaseTimeout time.Duration
	batch        int
	clock        clockwork.Clock
	tick         *ticker
}

func NewLeaseSweeper(interval, leaseTimeout time.Duration, batch int, clock clockwork.Clock) *LeaseSweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 500
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &LeaseSweeper{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_SWEEPER),
		leaseTimeout:  leaseTimeout,
		batch:         batch,
		clock:         clock,
	}
	s.tick = &ticker{interval: interval, clock: clock, scan: s.Scan}
	return s
}

func (s *LeaseSweeper) Start(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	s.tick.start()
	return nil
}

func (s *LeaseSweeper) Stop(ctx context.Context) error {
	if !s.IsActive() {
		return nil
	}
	s.tick.stop()
	return s.BaseComponent.Stop(ctx)
}

func (s *LeaseSweeper) Scan(ctx context.Context) {
	now := s.clock.Now().UTC()
	n, err := s.Tasks.ReclaimExpired(ctx, now, s.leaseTimeout, s.batch)
	if err != nil {
		logging.Error(ctx, "lease sweeper reclaim failed: "+err.Error())
	} else if n > 0 {
		s.Metrics.Scanned("sweeper", n)
		logging.Infof(ctx, "reclaimed %d expired leases", n)
	}
	stale, err := s.Runners.MarkStale(ctx, now.Add(-s.leaseTimeout), now)
	if err != nil {
		logging.Error(ctx, "lease sweeper mark stale runners failed: "+err.Error())
	} else if stale > 0 {
		logging.Infof(ctx, "marked %d silent runners offline", stale)
	}
}
