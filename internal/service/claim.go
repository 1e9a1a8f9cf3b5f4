package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/collaborator"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

// ClaimService leases the next eligible task to a runner and hydrates it.
type ClaimService struct {
	*core.BaseComponent
	Tasks     dao.TaskDao                  `infra:"dep:task_dao"`
	Campaigns dao.CampaignDao              `infra:"dep:campaign_dao"`
	Safety    *SafetyEnvelope              `infra:"dep:safety_envelope"`
	Directory collaborator.TargetDirectory `infra:"dep:target_directory?"`
	Renderer  collaborator.MessageRenderer `infra:"dep:message_renderer?"`
	Metrics   *metrics.Metrics             `infra:"dep:outreach_metrics?"`

	leaseTimeout time.Duration
	clock        clockwork.Clock
}

func NewClaimService(leaseTimeout time.Duration, clock clockwork.Clock) *ClaimService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClaimService{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_CLAIM),
		leaseTimeout:  leaseTimeout,
		clock:         clock,
	}
}

// Claim returns nil when nothing is eligible.
func (s *ClaimService) Claim(ctx context.Context, runnerID string) (claimed *model.ClaimedTask, err error) {
	ctx, span := startSpan(ctx, "outreach.claim")
	span.SetAttributes(attribute.String("runner.id", runnerID))
	start := time.Now()
	defer func() {
		result := "hit"
		switch {
		case err != nil:
			result = "error"
		case claimed == nil:
			result = "empty"
		}
		s.Metrics.Claim(result, time.Since(start))
		endSpan(span, err)
	}()

	now := s.clock.Now().UTC()
	t, err := s.Tasks.ClaimNext(ctx, runnerID, now, s.leaseTimeout)
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	span.SetAttributes(attribute.Int64("task.id", t.ID), attribute.Int64("campaign.id", t.CampaignID))
	logging.Info(ctx, "task claimed",
		zap.String("runner_id", runnerID),
		zap.Int64("task_id", t.ID),
		zap.Int64("campaign_id", t.CampaignID),
		zap.Int("attempt", t.Attempt),
	)

	claimed = &model.ClaimedTask{
		ID:         t.ID,
		CampaignID: t.CampaignID,
		TargetID:   t.TargetID,
		Attempt:    t.Attempt,
	}
	if t.LeaseToken != nil {
		claimed.LeaseToken = *t.LeaseToken
	}
	s.hydrate(ctx, claimed)
	return claimed, nil
}

// hydrate fills the optional fields. Failures are logged and never undo the claim.
func (s *ClaimService) hydrate(ctx context.Context, ct *model.ClaimedTask) {
	c, err := s.Campaigns.Get(ctx, ct.CampaignID)
	if err != nil {
		logging.Warnf(ctx, "hydrate task %d: campaign %d: %v", ct.ID, ct.CampaignID, err)
	} else {
		p := c.Pacing()
		ct.Pacing = &p
	}

	if s.Directory != nil {
		err := s.Safety.CRM().Execute(ctx, func(ctx context.Context) error {
			target, err := s.Directory.Profile(ctx, ct.TargetID)
			if err == nil {
				ct.Target = target
			}
			return err
		})
		if err != nil {
			logging.Warnf(ctx, "hydrate task %d: target %s: %v", ct.ID, ct.TargetID, err)
		}
	}

	if s.Renderer != nil && c != nil {
		msg, err := s.Renderer.RenderMessage(ctx, c.Template, ct.TargetID)
		if err != nil {
			logging.Warnf(ctx, "hydrate task %d: render message: %v", ct.ID, err)
		} else {
			ct.Message = msg
		}
	}
}
