package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store keeps per-actor event timestamps.
type Store interface {
	Append(ctx context.Context, actor string, at time.Time) error
	// Prune drops events at or before cutoff.
	Prune(ctx context.Context, actor string, cutoff time.Time) error
	// Since returns events strictly after cutoff in ascending order.
	Since(ctx context.Context, actor string, cutoff time.Time) ([]time.Time, error)
}

type WindowUsage struct {
	Name      string        `json:"name"`
	Size      time.Duration `json:"size"`
	Limit     int           `json:"limit"`
	Used      int           `json:"used"`
	Remaining int           `json:"remaining"`
	// RetryAfter is zero unless the window is full.
	RetryAfter time.Duration `json:"retryAfter"`
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Usage      []WindowUsage
}

type Limiter struct {
	policy Policy
	store  Store
	clock  clockwork.Clock
}

func NewLimiter(policy Policy, store Store, clock clockwork.Clock) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("rate limit store is nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{policy: policy.Sorted(), store: store, clock: clock}, nil
}

func (l *Limiter) Policy() Policy { return l.policy }

// CanProceed reports whether one more event fits every window.
func (l *Limiter) CanProceed(ctx context.Context, actor string) (bool, error) {
	d, err := l.Check(ctx, actor)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Check prunes the actor's history to the widest window and evaluates all windows.
func (l *Limiter) Check(ctx context.Context, actor string) (Decision, error) {
	now := l.clock.Now()
	cutoff := now.Add(-l.policy.Widest())
	if err := l.store.Prune(ctx, actor, cutoff); err != nil {
		return Decision{}, fmt.Errorf("prune %s: %w", actor, err)
	}
	events, err := l.store.Since(ctx, actor, cutoff)
	if err != nil {
		return Decision{}, fmt.Errorf("load %s: %w", actor, err)
	}
	return evaluate(l.policy, events, now), nil
}

func (l *Limiter) RecordEvent(ctx context.Context, actor string) error {
	if err := l.store.Append(ctx, actor, l.clock.Now()); err != nil {
		return fmt.Errorf("record %s: %w", actor, err)
	}
	return nil
}

func (l *Limiter) StatusOf(ctx context.Context, actor string) ([]WindowUsage, error) {
	d, err := l.Check(ctx, actor)
	if err != nil {
		return nil, err
	}
	return d.Usage, nil
}

// evaluate expects events ascending. An event t is inside window w iff t > now-w.Size.
func evaluate(policy Policy, events []time.Time, now time.Time) Decision {
	d := Decision{Allowed: true, Usage: make([]WindowUsage, 0, len(policy))}
	for _, w := range policy {
		boundary := now.Add(-w.Size)
		first := len(events)
		for i, t := range events {
			if t.After(boundary) {
				first = i
				break
			}
		}
		inside := events[first:]
		u := WindowUsage{Name: w.Name, Size: w.Size, Limit: w.Limit, Used: len(inside)}
		if u.Used >= w.Limit {
			// the event that must leave the window for one slot to free up
			oldest := inside[u.Used-w.Limit]
			u.RetryAfter = oldest.Add(w.Size).Sub(now)
			d.Allowed = false
			if u.RetryAfter > d.RetryAfter {
				d.RetryAfter = u.RetryAfter
			}
		} else {
			u.Remaining = w.Limit - u.Used
		}
		d.Usage = append(d.Usage, u)
	}
	return d
}
