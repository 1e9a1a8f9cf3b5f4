package model

// ClaimedTask is a task hydrated for the runner that claimed it.
type ClaimedTask struct {
	ID         int64          `json:"id"`
	CampaignID int64          `json:"campaignId"`
	TargetID   string         `json:"targetId"`
	Attempt    int            `json:"attempt"`
	LeaseToken string         `json:"leaseToken"`
	Pacing     *Pacing        `json:"pacing,omitempty"`
	Target     *Target        `json:"target,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// StatusCounts maps a task status to its count within a campaign.
type StatusCounts map[string]int64
