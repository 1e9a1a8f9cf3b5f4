package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
)

// maxReleaseDelay caps the run_after push a runner may ask for on release.
const maxReleaseDelay = 7 * 24 * time.Hour

// GateService is the execution-layer envelope a runner consults right before acting.
type GateService struct {
	*core.BaseComponent
	Tasks     dao.TaskDao      `infra:"dep:task_dao"`
	Campaigns dao.CampaignDao  `infra:"dep:campaign_dao"`
	Safety    *SafetyEnvelope  `infra:"dep:safety_envelope"`
	Metrics   *metrics.Metrics `infra:"dep:outreach_metrics?"`

	clock clockwork.Clock
}

func NewGateService(clock clockwork.Clock) *GateService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GateService{BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_GATE), clock: clock}
}

// Permit returns nil when the action may proceed, otherwise RateLimited or BreakerOpen
// carrying a retry-after hint. A denial is never a task failure.
func (s *GateService) Permit(ctx context.Context, runnerID string, taskID int64, leaseToken string) error {
	t, err := loadHeldTask(ctx, s.Tasks, runnerID, taskID, leaseToken)
	if err != nil {
		return err
	}
	c, err := s.Campaigns.Get(ctx, t.CampaignID)
	if err != nil {
		return fmt.Errorf("load campaign %d: %w", t.CampaignID, err)
	}

	d, err := s.Safety.Accounts().Check(ctx, c.SenderAccount)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return s.deny(ctx, t.ID, "account_rate_limited", errs.ErrRateLimited.WithRetryAfter(d.RetryAfter))
	}

	caps, err := s.Safety.CampaignCaps(c)
	if err != nil {
		return err
	}
	if caps != nil {
		d, err := caps.Check(ctx, campaignActor(c.ID))
		if err != nil {
			return err
		}
		if !d.Allowed {
			return s.deny(ctx, t.ID, "campaign_cap", errs.ErrRateLimited.WithRetryAfter(d.RetryAfter))
		}
	}

	// the outcome is reported by the completion engine once the runner is done
	if _, err := s.Safety.Channel(c.Channel).Allow(ctx); err != nil {
		if errs.CodeOf(err) == errs.BreakerOpen {
			return s.deny(ctx, t.ID, "breaker_open", err)
		}
		return err
	}
	return nil
}

func (s *GateService) deny(ctx context.Context, taskID int64, reason string, err error) error {
	s.Metrics.GateDenied(reason)
	logging.Info(ctx, "permit denied",
		zap.Int64("task_id", taskID),
		zap.String("reason", reason),
		zap.Duration("retry_after", errs.RetryAfterOf(err)),
	)
	return err
}

// Release hands a claimed task back to the queue without counting an attempt.
func (s *GateService) Release(ctx context.Context, runnerID string, taskID int64, leaseToken string, retryAfter time.Duration) error {
	if retryAfter < 0 {
		return errs.New(errs.Invalid, "retryAfterMs must not be negative")
	}
	if retryAfter > maxReleaseDelay {
		retryAfter = maxReleaseDelay
	}
	t, err := loadHeldTask(ctx, s.Tasks, runnerID, taskID, leaseToken)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	if err := s.Tasks.Release(ctx, t, now.Add(retryAfter), now); err != nil {
		return leaseErr(err, t.ID)
	}
	logging.Info(ctx, "task released", zap.String("runner_id", runnerID), zap.Int64("task_id", t.ID), zap.Duration("retry_after", retryAfter))
	return nil
}
