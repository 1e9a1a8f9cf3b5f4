package model

import "time"

// ProgressEntry 审计流水, 只追加
type ProgressEntry struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID      int64     `gorm:"index;not null" json:"taskId"`
	RunnerID    string    `gorm:"size:191;not null" json:"runnerId"`
	Stage       string    `gorm:"size:64;not null" json:"stage"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	Message     string    `gorm:"type:text" json:"message,omitempty"`
	EvidenceRef string    `gorm:"size:512" json:"evidenceRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (ProgressEntry) TableName() string { return "outreach_progress_entries" }
