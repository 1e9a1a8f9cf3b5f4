package model

import "time"

// Target is the CRM-side recipient. Only the fields the coordinator reads or writes are mapped.
type Target struct {
	ID            string     `gorm:"primaryKey;size:191" json:"id"`
	DisplayName   string     `gorm:"size:191" json:"displayName"`
	ProfileURL    string     `gorm:"size:512" json:"profileUrl"`
	Company       string     `gorm:"size:191" json:"company,omitempty"`
	Title         string     `gorm:"size:191" json:"title,omitempty"`
	LastContacted *time.Time `json:"lastContactedAt,omitempty"`
}

func (Target) TableName() string { return "outreach_targets" }
