package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/collaborator"
	"github.com/grand-thief-cash/chaos/outreach/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type CompleteRequest struct {
	TaskID      int64             `json:"taskId"`
	LeaseToken  string            `json:"leaseToken,omitempty"`
	Outcome     bizConsts.Outcome `json:"outcome"`
	ErrorDetail string            `json:"errorDetail,omitempty"`
}

type CompleteResult struct {
	TaskID   int64                `json:"taskId"`
	Status   bizConsts.TaskStatus `json:"status"`
	Attempt  int                  `json:"attempt"`
	RunAfter *time.Time           `json:"runAfter,omitempty"`
	// Terminal is set when the attempt budget is exhausted.
	Terminal bool `json:"terminal,omitempty"`
}

// MaxBackoff bounds Backoff so large attempt budgets cannot overflow.
const MaxBackoff = 30 * 24 * time.Hour

// Backoff is base^attempt * unit, capped at MaxBackoff.
func Backoff(base int, unit time.Duration, attempt int) time.Duration {
	d := unit
	if d > MaxBackoff {
		return MaxBackoff
	}
	for i := 0; i < attempt; i++ {
		if base > 1 && d > MaxBackoff/time.Duration(base) {
			return MaxBackoff
		}
		d *= time.Duration(base)
	}
	return d
}

// CompletionService applies runner outcome reports.
type CompletionService struct {
	*core.BaseComponent
	Tasks     dao.TaskDao                  `infra:"dep:task_dao"`
	Campaigns dao.CampaignDao              `infra:"dep:campaign_dao"`
	Safety    *SafetyEnvelope              `infra:"dep:safety_envelope"`
	Directory collaborator.TargetDirectory `infra:"dep:target_directory?"`
	Metrics   *metrics.Metrics             `infra:"dep:outreach_metrics?"`

	retry config.RetryConfig
	clock clockwork.Clock
}

func NewCompletionService(retry config.RetryConfig, clock clockwork.Clock) *CompletionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CompletionService{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_COMPLETION),
		retry:         retry,
		clock:         clock,
	}
}

func (s *CompletionService) Complete(ctx context.Context, runnerID string, req CompleteRequest) (res *CompleteResult, err error) {
	ctx, span := startSpan(ctx, "outreach.complete")
	span.SetAttributes(
		attribute.String("runner.id", runnerID),
		attribute.Int64("task.id", req.TaskID),
		attribute.String("outcome", string(req.Outcome)),
	)
	defer func() { endSpan(span, err) }()

	if req.Outcome != bizConsts.OutcomeSuccess && req.Outcome != bizConsts.OutcomeFailure {
		return nil, errs.New(errs.Invalid, "outcome must be success or failure")
	}
	t, err := loadHeldTask(ctx, s.Tasks, runnerID, req.TaskID, req.LeaseToken)
	if err != nil {
		return nil, err
	}
	campaign, cerr := s.Campaigns.Get(ctx, t.CampaignID)
	if cerr != nil {
		logging.Warnf(ctx, "complete task %d: load campaign %d: %v", t.ID, t.CampaignID, cerr)
		campaign = nil
	}

	now := s.clock.Now().UTC()
	res = &CompleteResult{TaskID: t.ID}
	switch req.Outcome {
	case bizConsts.OutcomeSuccess:
		if err := s.Tasks.MarkSucceeded(ctx, t, now); err != nil {
			return nil, leaseErr(err, t.ID)
		}
		s.markContacted(ctx, t.TargetID, now)
	case bizConsts.OutcomeFailure:
		if err := s.fail(ctx, t, req.ErrorDetail, now); err != nil {
			return nil, err
		}
		res.Terminal = t.Status == bizConsts.TaskFailed
		if t.Status == bizConsts.TaskDeferred {
			ra := t.RunAfter
			res.RunAfter = &ra
		}
	}
	res.Status, res.Attempt = t.Status, t.Attempt

	logging.Info(ctx, "task completed",
		zap.String("runner_id", runnerID),
		zap.Int64("task_id", t.ID),
		zap.String("outcome", string(req.Outcome)),
		zap.String("status", string(t.Status)),
		zap.Int("attempt", t.Attempt),
	)
	s.Metrics.Completion(string(req.Outcome), string(t.Status))

	if campaign != nil {
		s.recordAttempt(ctx, campaign, req.Outcome, req.ErrorDetail)
	}
	s.checkCampaign(ctx, t.CampaignID)
	return res, nil
}

// fail increments attempt and either defers with backoff or fails terminally.
func (s *CompletionService) fail(ctx context.Context, t *model.Task, detail string, now time.Time) error {
	attempt := t.Attempt + 1
	if detail == "" {
		detail = string(errs.TransientExternalFailure)
	}
	if attempt < s.retry.MaxAttempts {
		runAfter := now.Add(Backoff(s.retry.BackoffBase, s.retry.BackoffUnit, attempt))
		if err := s.Tasks.MarkDeferred(ctx, t, attempt, runAfter, detail, now); err != nil {
			return leaseErr(err, t.ID)
		}
		return nil
	}
	if err := s.Tasks.MarkFailed(ctx, t, attempt, detail, now); err != nil {
		return leaseErr(err, t.ID)
	}
	logging.Warn(ctx, "task failed terminally", zap.Int64("task_id", t.ID), zap.Int("attempt", attempt), zap.String("last_error", detail))
	return nil
}

func (s *CompletionService) markContacted(ctx context.Context, targetID string, now time.Time) {
	if s.Directory == nil {
		return
	}
	err := s.Safety.CRM().Execute(ctx, func(ctx context.Context) error {
		return s.Directory.MarkTargetContacted(ctx, targetID, now)
	})
	if err != nil {
		logging.Warnf(ctx, "mark target %s contacted failed: %v", targetID, err)
	}
}

// recordAttempt feeds the limiter and the channel breaker; the action was attempted either way.
func (s *CompletionService) recordAttempt(ctx context.Context, c *model.Campaign, outcome bizConsts.Outcome, detail string) {
	if err := s.Safety.RecordAttempt(ctx, c); err != nil {
		logging.Warnf(ctx, "record rate event for %s failed: %v", c.SenderAccount, err)
	}
	var callErr error
	if outcome == bizConsts.OutcomeFailure {
		callErr = errs.New(errs.TransientExternalFailure, "%s", detail)
	}
	if err := s.Safety.Channel(c.Channel).Report(ctx, callErr); err != nil {
		logging.Warnf(ctx, "report channel %s breaker failed: %v", c.Channel, err)
	}
}

// checkCampaign runs after the task write is durable. Every completion runs its own check;
// the campaign row lock in ReconcileCompletion orders concurrent checks.
func (s *CompletionService) checkCampaign(ctx context.Context, campaignID int64) {
	status, changed, err := s.Campaigns.ReconcileCompletion(ctx, campaignID, s.clock.Now().UTC())
	if err != nil {
		logging.Errorf(ctx, "campaign %d completion check failed: %v", campaignID, err)
		return
	}
	if changed {
		logging.Info(ctx, "campaign status changed", zap.Int64("campaign_id", campaignID), zap.String("status", string(status)))
	}
}
