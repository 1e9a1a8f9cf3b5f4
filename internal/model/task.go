package model

import (
	"time"

	"github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// Task 一次外呼动作 (给某个 target 发消息), 由 runner 认领执行
type Task struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID int64             `gorm:"index:idx_task_campaign_status,priority:1;not null" json:"campaignId"`
	TargetID   string            `gorm:"size:191;not null" json:"targetId"`
	Status     consts.TaskStatus `gorm:"size:32;index:idx_task_campaign_status,priority:2;index:idx_task_claim,priority:1;not null" json:"status"`
	Attempt    int               `gorm:"not null;default:0" json:"attempt"`
	RunAfter   time.Time         `gorm:"index:idx_task_claim,priority:2;not null" json:"runAfter"`
	LockedBy   *string           `gorm:"size:191;index" json:"lockedBy,omitempty"`
	LockedAt   *time.Time        `json:"lockedAt,omitempty"`
	LeaseToken *string           `gorm:"size:64" json:"-"`
	Version    int64             `gorm:"not null;default:1" json:"version"`
	LastError  *string           `gorm:"type:text" json:"lastError,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

func (Task) TableName() string { return "outreach_tasks" }

// HeldBy reports whether runnerID holds the current lease. An empty token skips the token check.
func (t *Task) HeldBy(runnerID, leaseToken string) bool {
	if t.Status != consts.TaskInProgress || t.LockedBy == nil || *t.LockedBy != runnerID {
		return false
	}
	return leaseToken == "" || (t.LeaseToken != nil && *t.LeaseToken == leaseToken)
}

// LeaseExpired reports whether an in-progress lease is older than timeout at now.
func (t *Task) LeaseExpired(now time.Time, timeout time.Duration) bool {
	return t.Status == consts.TaskInProgress && t.LockedAt != nil && !t.LockedAt.After(now.Add(-timeout))
}
