package model

import (
	"time"

	"github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

type Runner struct {
	ID              string              `gorm:"primaryKey;size:191" json:"id"`
	Status          consts.RunnerStatus `gorm:"size:32;not null" json:"status"`
	MetricsJSON     string              `gorm:"column:metrics;type:text" json:"-"`
	LastHeartbeatAt time.Time           `gorm:"index;not null" json:"lastHeartbeatAt"`
	ConfigVersion   string              `gorm:"size:64" json:"configVersion"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func (Runner) TableName() string { return "outreach_runners" }

// Liveness is the admin view of a runner.
type Liveness struct {
	RunnerID        string              `json:"runnerId"`
	Status          consts.RunnerStatus `json:"status"`
	Alive           bool                `json:"alive"`
	LastHeartbeatAt *time.Time          `json:"lastHeartbeatAt,omitempty"`
	HeldTasks       int64               `json:"heldTasks"`
}
