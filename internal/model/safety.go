package model

import "time"

// RateEvent is one attempted action of an actor.
type RateEvent struct {
	ID         string    `gorm:"primaryKey;size:64"`
	ActorID    string    `gorm:"size:191;index:idx_rate_actor_at,priority:1;not null"`
	OccurredAt time.Time `gorm:"index:idx_rate_actor_at,priority:2;not null"`
}

func (RateEvent) TableName() string { return "outreach_rate_events" }

// BreakerStateRow persists a circuit breaker; Version is the compare-and-swap token.
type BreakerStateRow struct {
	Name                 string     `gorm:"primaryKey;size:191"`
	State                string     `gorm:"size:16;not null"`
	ConsecutiveFailures  int        `gorm:"not null;default:0"`
	ConsecutiveSuccesses int        `gorm:"not null;default:0"`
	TotalRequests        int64      `gorm:"not null;default:0"`
	LastFailureAt        *time.Time
	OpenedAt             *time.Time
	NextAttemptAt        *time.Time
	TrialsInFlight       int   `gorm:"not null;default:0"`
	Version              int64 `gorm:"not null;default:0"`
	UpdatedAt            time.Time
}

func (BreakerStateRow) TableName() string { return "outreach_breaker_states" }
