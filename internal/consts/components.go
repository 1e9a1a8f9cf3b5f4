package consts

const (
	COMP_DB = "outreach_db"

	COMP_DAO_TASK     = "task_dao"
	COMP_DAO_CAMPAIGN = "campaign_dao"
	COMP_DAO_RUNNER   = "runner_dao"
	COMP_DAO_PROGRESS = "progress_dao"
	COMP_DAO_TARGET   = "target_dao"
	COMP_DAO_RATE     = "rate_event_dao"
	COMP_DAO_BREAKER  = "breaker_state_dao"

	COMP_SVC_AUTH          = "runner_auth"
	COMP_SVC_SAFETY        = "safety_envelope"
	COMP_SVC_RUNNER_CONFIG = "runner_config_source"
	COMP_SVC_CLAIM         = "claim_service"
	COMP_SVC_HEARTBEAT     = "heartbeat_service"
	COMP_SVC_COMPLETION    = "completion_service"
	COMP_SVC_GATE          = "gate_service"
	COMP_SVC_PROMOTER      = "deferred_promoter"
	COMP_SVC_SWEEPER       = "lease_sweeper"
	COMP_SVC_ADMIN         = "admin_service"

	COMP_COLLAB_RENDERER  = "message_renderer"
	COMP_COLLAB_DIRECTORY = "target_directory"
	COMP_COLLAB_AUDIT     = "audit_sink"

	COMP_METRICS = "outreach_metrics"

	COMP_CTRL_RUNNER = "runner_ctrl"
	COMP_CTRL_ADMIN  = "admin_ctrl"
)
