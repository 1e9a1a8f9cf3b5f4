package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	redisComp "github.com/grand-thief-cash/chaos/outreach/pkg/application/components/redis"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

type HeartbeatRequest struct {
	Status        bizConsts.RunnerStatus `json:"status"`
	Metrics       json.RawMessage        `json:"metrics,omitempty"`
	ConfigVersion string                 `json:"configVersion"`
}

type HeartbeatResult struct {
	PendingTaskCount int64         `json:"pendingTaskCount"`
	RunnerConfig     *RunnerConfig `json:"runnerConfig"`
}

// HeartbeatService tracks runner liveness and keeps the leases of live runners fresh.
type HeartbeatService struct {
	*core.BaseComponent
	Tasks   dao.TaskDao               `infra:"dep:task_dao"`
	Runners dao.RunnerDao             `infra:"dep:runner_dao"`
	Config  *RunnerConfigSource       `infra:"dep:runner_config_source?"`
	Redis   *redisComp.RedisComponent `infra:"dep:redis?"`
	Metrics *metrics.Metrics          `infra:"dep:outreach_metrics?"`

	livenessTimeout time.Duration
	redisPresence   bool
	clock           clockwork.Clock
}

func NewHeartbeatService(livenessTimeout time.Duration, redisPresence bool, clock clockwork.Clock) *HeartbeatService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HeartbeatService{
		BaseComponent:   core.NewBaseComponent(bizConsts.COMP_SVC_HEARTBEAT),
		livenessTimeout: livenessTimeout,
		redisPresence:   redisPresence,
		clock:           clock,
	}
}

func (s *HeartbeatService) presenceKey(runnerID string) string {
	return s.Redis.Key("runner", runnerID)
}

func (s *HeartbeatService) usePresence() bool { return s.redisPresence && s.Redis != nil }

func (s *HeartbeatService) Heartbeat(ctx context.Context, runnerID string, req HeartbeatRequest) (res *HeartbeatResult, err error) {
	ctx, span := startSpan(ctx, "outreach.heartbeat")
	span.SetAttributes(attribute.String("runner.id", runnerID), attribute.String("runner.status", string(req.Status)))
	defer func() { endSpan(span, err) }()

	if req.Status == "" {
		req.Status = bizConsts.RunnerIdle
	}
	if !req.Status.Valid() {
		return nil, errs.New(errs.Invalid, "unknown runner status %q", req.Status)
	}
	metricsJSON := bizConsts.DEFAULT_JSON_STR
	if len(req.Metrics) > 0 {
		if !json.Valid(req.Metrics) {
			return nil, errs.New(errs.Invalid, "metrics must be JSON")
		}
		metricsJSON = string(req.Metrics)
	}

	now := s.clock.Now().UTC()
	cfg := s.Config.ForVersion(req.ConfigVersion)
	version := req.ConfigVersion
	if cfg != nil {
		version = cfg.Version
	}
	if err := s.Runners.Upsert(ctx, &model.Runner{
		ID:              runnerID,
		Status:          req.Status,
		MetricsJSON:     metricsJSON,
		LastHeartbeatAt: now,
		ConfigVersion:   version,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("upsert runner %s: %w", runnerID, err)
	}
	s.Metrics.Heartbeat(string(req.Status))

	var pending int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.Tasks.RenewLeases(gctx, runnerID, now)
		if err != nil {
			return fmt.Errorf("renew leases: %w", err)
		}
		if n > 0 {
			logging.Debugf(gctx, "runner %s renewed %d leases", runnerID, n)
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.Tasks.CountQueued(gctx, now)
		if err != nil {
			return fmt.Errorf("count queued: %w", err)
		}
		pending = n
		return nil
	})
	if s.usePresence() {
		g.Go(func() error {
			// presence is advisory; the database row stays authoritative
			if err := s.Redis.Client().Set(gctx, s.presenceKey(runnerID), now.Format(time.RFC3339Nano), s.livenessTimeout).Err(); err != nil {
				logging.Warnf(gctx, "runner %s presence write failed: %v", runnerID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &HeartbeatResult{PendingTaskCount: pending, RunnerConfig: cfg}, nil
}

// IsAlive reports liveness from the last heartbeat, or from the redis presence key when enabled.
func (s *HeartbeatService) IsAlive(ctx context.Context, runnerID string) (*model.Liveness, error) {
	r, err := s.Runners.Get(ctx, runnerID)
	if dao.IsNotFound(err) {
		return nil, errs.New(errs.NotFound, "runner %s not found", runnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load runner %s: %w", runnerID, err)
	}
	now := s.clock.Now().UTC()
	last := r.LastHeartbeatAt
	alive := now.Sub(last) < s.livenessTimeout
	if s.usePresence() {
		n, err := s.Redis.Client().Exists(ctx, s.presenceKey(runnerID)).Result()
		if err != nil {
			logging.Warnf(ctx, "runner %s presence lookup failed: %v", runnerID, err)
		} else {
			alive = n == 1
		}
	}
	held, err := s.Tasks.CountHeldBy(ctx, runnerID)
	if err != nil {
		return nil, fmt.Errorf("count held tasks: %w", err)
	}
	status := r.Status
	if !alive {
		status = bizConsts.RunnerOffline
	}
	return &model.Liveness{
		RunnerID:        runnerID,
		Status:          status,
		Alive:           alive,
		LastHeartbeatAt: &last,
		HeldTasks:       held,
	}, nil
}
