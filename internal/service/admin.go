package service

import (
	"context"
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/ratelimit"
)

type CampaignStats struct {
	CampaignID int64                    `json:"campaignId"`
	Status     bizConsts.CampaignStatus `json:"status"`
	Counts     model.StatusCounts       `json:"counts"`
}

type LimitStatus struct {
	Actor   string                  `json:"actor"`
	Allowed bool                    `json:"allowed"`
	Windows []ratelimit.WindowUsage `json:"windows"`
}

// AdminService serves read-only aggregates.
type AdminService struct {
	*core.BaseComponent
	Tasks     dao.TaskDao       `infra:"dep:task_dao"`
	Campaigns dao.CampaignDao   `infra:"dep:campaign_dao"`
	Safety    *SafetyEnvelope   `infra:"dep:safety_envelope"`
	Heartbeat *HeartbeatService `infra:"dep:heartbeat_service"`
}

func NewAdminService() *AdminService {
	return &AdminService{BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_ADMIN)}
}

func (s *AdminService) CampaignStats(ctx context.Context, id int64) (*CampaignStats, error) {
	c, err := s.Campaigns.Get(ctx, id)
	if dao.IsNotFound(err) {
		return nil, errs.New(errs.NotFound, "campaign %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", id, err)
	}
	counts, err := s.Tasks.StatusCounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count tasks of campaign %d: %w", id, err)
	}
	return &CampaignStats{CampaignID: id, Status: c.Status, Counts: counts}, nil
}

func (s *AdminService) Breakers(ctx context.Context) ([]breaker.Snapshot, error) {
	return s.Safety.Breakers().Snapshots(ctx)
}

// Limits reports account window usage for actor.
func (s *AdminService) Limits(ctx context.Context, actor string) (*LimitStatus, error) {
	d, err := s.Safety.Accounts().Check(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &LimitStatus{Actor: actor, Allowed: d.Allowed, Windows: d.Usage}, nil
}

func (s *AdminService) Runner(ctx context.Context, id string) (*model.Liveness, error) {
	return s.Heartbeat.IsAlive(ctx, id)
}
