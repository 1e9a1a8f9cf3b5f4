package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
)

const maxCASRounds = 8

var ErrContention = errors.New("breaker state contention")

type Settings struct {
	FailureThreshold int
	VolumeThreshold  int
	SuccessThreshold int
	Cooldown         time.Duration
	// IsFailure filters errors; a false result records the call as a success.
	IsFailure func(error) bool
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.VolumeThreshold <= 0 {
		s.VolumeThreshold = 1
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = time.Minute
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil }
	}
	return s
}

// TransitionFunc observes state changes.
type TransitionFunc func(name string, from, to State)

type Breaker struct {
	name     string
	settings Settings
	store    StateStore
	clock    clockwork.Clock
	onChange TransitionFunc
}

func New(name string, settings Settings, store StateStore, clock clockwork.Clock, onChange TransitionFunc) *Breaker {
	if store == nil {
		store = NewMemoryStore()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Breaker{name: name, settings: settings.withDefaults(), store: store, clock: clock, onChange: onChange}
}

func (b *Breaker) Name() string { return b.name }

// Allow is the two-step form of Execute for actions performed elsewhere. done must be
// called once with the outcome. HALF_OPEN admits at most SuccessThreshold unreported trials;
// each grant pushes NextAttemptAt out by Cooldown as the trial deadline.
func (b *Breaker) Allow(ctx context.Context) (done func(error), err error) {
	for i := 0; i < maxCASRounds; i++ {
		cur, err := b.store.Load(ctx, b.name)
		if err != nil {
			return nil, fmt.Errorf("load breaker %s: %w", b.name, err)
		}
		if cur.State == StateClosed {
			return b.doneFunc(ctx), nil
		}
		now := b.clock.Now()
		full := cur.State == StateHalfOpen && cur.TrialsInFlight >= b.settings.SuccessThreshold
		if (cur.State == StateOpen || full) && now.Before(cur.NextAttemptAt) {
			return nil, errs.ErrBreakerOpen.WithRetryAfter(cur.NextAttemptAt.Sub(now))
		}
		next := cur
		switch {
		case cur.State == StateOpen:
			next.State = StateHalfOpen
			next.ConsecutiveFailures = 0
			next.ConsecutiveSuccesses = 0
			next.TrialsInFlight = 0
		case full:
			// trials unreported past their deadline are treated as lost
			next.TrialsInFlight = 0
		}
		next.TrialsInFlight++
		next.NextAttemptAt = now.Add(b.settings.Cooldown)
		if ok, err := b.swap(ctx, cur, next); err != nil {
			return nil, err
		} else if ok {
			return b.doneFunc(ctx), nil
		}
	}
	return nil, ErrContention
}

func (b *Breaker) doneFunc(ctx context.Context) func(error) {
	return func(err error) { _ = b.Report(ctx, err) }
}

// Report records the outcome of one call.
func (b *Breaker) Report(ctx context.Context, callErr error) error {
	failed := callErr != nil && b.settings.IsFailure(callErr)
	for i := 0; i < maxCASRounds; i++ {
		cur, err := b.store.Load(ctx, b.name)
		if err != nil {
			return fmt.Errorf("load breaker %s: %w", b.name, err)
		}
		next := b.apply(cur, failed, b.clock.Now())
		ok, err := b.swap(ctx, cur, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrContention
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	done, err := b.Allow(ctx)
	if err != nil {
		return err
	}
	callErr := fn(ctx)
	done(callErr)
	return callErr
}

func (b *Breaker) Snapshot(ctx context.Context) (Snapshot, error) {
	return b.store.Load(ctx, b.name)
}

// Reset forces the breaker closed with zeroed counters.
func (b *Breaker) Reset(ctx context.Context) error {
	for i := 0; i < maxCASRounds; i++ {
		cur, err := b.store.Load(ctx, b.name)
		if err != nil {
			return err
		}
		next := Fresh(b.name)
		if ok, err := b.swap(ctx, cur, next); err != nil || ok {
			return err
		}
	}
	return ErrContention
}

func (b *Breaker) apply(cur Snapshot, failed bool, now time.Time) Snapshot {
	s := b.settings
	next := cur
	next.TotalRequests++
	if cur.State == StateHalfOpen && next.TrialsInFlight > 0 {
		next.TrialsInFlight--
	}
	if failed {
		next.ConsecutiveFailures++
		next.ConsecutiveSuccesses = 0
		next.LastFailureAt = now
		switch cur.State {
		case StateHalfOpen:
			return trip(next, now, s.Cooldown)
		case StateClosed:
			if next.TotalRequests >= int64(s.VolumeThreshold) && next.ConsecutiveFailures >= s.FailureThreshold {
				return trip(next, now, s.Cooldown)
			}
		}
		return next
	}
	next.ConsecutiveFailures = 0
	next.ConsecutiveSuccesses++
	if cur.State == StateHalfOpen && next.ConsecutiveSuccesses >= s.SuccessThreshold {
		closed := Fresh(cur.Name)
		closed.Version = cur.Version
		return closed
	}
	return next
}

func trip(s Snapshot, now time.Time, cooldown time.Duration) Snapshot {
	s.State = StateOpen
	s.OpenedAt = now
	s.NextAttemptAt = now.Add(cooldown)
	s.ConsecutiveSuccesses = 0
	s.TrialsInFlight = 0
	return s
}

func (b *Breaker) swap(ctx context.Context, cur, next Snapshot) (bool, error) {
	next.Name = b.name
	next.Version = cur.Version + 1
	ok, err := b.store.CompareAndSwap(ctx, cur, next)
	if err != nil {
		return false, fmt.Errorf("store breaker %s: %w", b.name, err)
	}
	if ok && cur.State != next.State && b.onChange != nil {
		b.onChange(b.name, cur.State, next.State)
	}
	return ok, nil
}
