package breaker

import (
	"context"
	"time"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Snapshot is the persisted state of one breaker. Version is bumped on every write.
type Snapshot struct {
	Name                 string    `json:"name"`
	State                State     `json:"state"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	TotalRequests        int64     `json:"totalRequests"`
	LastFailureAt        time.Time `json:"lastFailureAt,omitempty"`
	OpenedAt             time.Time `json:"openedAt,omitempty"`
	NextAttemptAt        time.Time `json:"nextAttemptAt,omitempty"`
	// TrialsInFlight counts HALF_OPEN permits whose outcome is not reported yet.
	TrialsInFlight int   `json:"trialsInFlight"`
	Version        int64 `json:"version"`
}

// Fresh is the state of a breaker that was never written.
func Fresh(name string) Snapshot {
	return Snapshot{Name: name, State: StateClosed}
}

// StateStore persists snapshots. Load returns Fresh(name) for unknown breakers.
// CompareAndSwap writes next only if the stored version still equals prev.Version.
type StateStore interface {
	Load(ctx context.Context, name string) (Snapshot, error)
	CompareAndSwap(ctx context.Context, prev, next Snapshot) (bool, error)
}
