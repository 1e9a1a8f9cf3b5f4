package consts

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskInProgress TaskStatus = "in_progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskDeferred   TaskStatus = "deferred" // 失败后退避等待, 到期由 promoter 转回 queued
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool { return s == TaskSucceeded || s == TaskFailed }

var AllTaskStatuses = []TaskStatus{TaskQueued, TaskInProgress, TaskSucceeded, TaskFailed, TaskDeferred}

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignArchived  CampaignStatus = "archived"
)

// NonClaimableCampaignStatuses block claims on every task of the campaign.
var NonClaimableCampaignStatuses = []CampaignStatus{CampaignDraft, CampaignPaused, CampaignArchived}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type RunnerStatus string

const (
	RunnerIdle    RunnerStatus = "idle"
	RunnerBusy    RunnerStatus = "busy"
	RunnerPaused  RunnerStatus = "paused"
	RunnerOffline RunnerStatus = "offline"
)

func (s RunnerStatus) Valid() bool {
	switch s {
	case RunnerIdle, RunnerBusy, RunnerPaused, RunnerOffline:
		return true
	}
	return false
}

const DEFAULT_JSON_STR = "{}"
