package model

import (
	"time"

	"github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// Campaign carries the pacing the runner applies around each action.
type Campaign struct {
	ID     int64                 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string                `gorm:"size:191;not null" json:"name"`
	Status consts.CampaignStatus `gorm:"size:32;not null;index" json:"status"`
	// SenderAccount is the rate limiter actor.
	SenderAccount string `gorm:"size:191;not null" json:"senderAccount"`
	// Channel keys the circuit breaker, e.g. "linkedin".
	Channel     string     `gorm:"size:64;not null" json:"channel"`
	Template    string     `gorm:"type:text" json:"template"`
	DailyCap    int        `gorm:"not null;default:0" json:"dailyCap"`
	HourlyCap   int        `gorm:"not null;default:0" json:"hourlyCap"`
	JitterMs    int        `gorm:"not null;default:0" json:"jitterMs"`
	DwellMs     int        `gorm:"not null;default:0" json:"dwellMs"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (Campaign) TableName() string { return "outreach_campaigns" }

// Pacing is the subset of a campaign handed to runners with a claimed task.
type Pacing struct {
	Channel   string `json:"channel"`
	JitterMs  int    `json:"jitterMs"`
	DwellMs   int    `json:"dwellMs"`
	DailyCap  int    `json:"dailyCap"`
	HourlyCap int    `json:"hourlyCap"`
}

func (c *Campaign) Pacing() Pacing {
	return Pacing{Channel: c.Channel, JitterMs: c.JitterMs, DwellMs: c.DwellMs, DailyCap: c.DailyCap, HourlyCap: c.HourlyCap}
}
