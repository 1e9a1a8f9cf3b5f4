package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	redisComp "github.com/grand-thief-cash/chaos/outreach/pkg/application/components/redis"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	"github.com/grand-thief-cash/chaos/outreach/internal/breaker"
	"github.com/grand-thief-cash/chaos/outreach/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/metrics"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
	"github.com/grand-thief-cash/chaos/outreach/internal/ratelimit"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"

	crmBreaker = "crm"
)

func channelBreaker(channel string) string { return "channel:" + channel }

func campaignActor(id int64) string { return "campaign:" + strconv.FormatInt(id, 10) }

// SafetyEnvelope owns the rate limiter and breaker state shared by the gate and completion engine.
type SafetyEnvelope struct {
	*core.BaseComponent
	Redis      *redisComp.RedisComponent `infra:"dep:redis?"`
	RateDao    dao.RateEventDao          `infra:"dep:rate_event_dao?"`
	BreakerDao dao.BreakerStateDao       `infra:"dep:breaker_state_dao?"`
	Metrics    *metrics.Metrics          `infra:"dep:outreach_metrics?"`

	rlCfg config.RateLimitConfig
	brCfg config.BreakerConfig
	clock clockwork.Clock

	store    ratelimit.Store
	accounts *ratelimit.Limiter
	breakers *breaker.Group
}

func NewSafetyEnvelope(rl config.RateLimitConfig, br config.BreakerConfig, clock clockwork.Clock) *SafetyEnvelope {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SafetyEnvelope{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_SAFETY, consts.COMPONENT_LOGGING),
		rlCfg:         rl,
		brCfg:         br,
		clock:         clock,
	}
}

func (s *SafetyEnvelope) Start(ctx context.Context) error {
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	policy := policyFromConfig(s.rlCfg.Windows)
	store, err := s.rateStore(policy)
	if err != nil {
		return err
	}
	brStore, err := s.breakerStore()
	if err != nil {
		return err
	}
	if err := s.init(policy, store, brStore); err != nil {
		return err
	}
	logging.Infof(ctx, "safety envelope: rate limit backend=%s breaker backend=%s", s.rlCfg.Backend, s.brCfg.Backend)
	return nil
}

func (s *SafetyEnvelope) init(policy ratelimit.Policy, store ratelimit.Store, brStore breaker.StateStore) error {
	limiter, err := ratelimit.NewLimiter(policy, store, s.clock)
	if err != nil {
		return fmt.Errorf("account rate limit policy: %w", err)
	}
	s.store = store
	s.accounts = limiter
	s.breakers = breaker.NewGroup(breakerSettings(s.brCfg.Channel), brStore, s.clock, s.onTransition)
	crm := breakerSettings(s.brCfg.CRM)
	// a missing target is an answer, not an outage
	crm.IsFailure = func(err error) bool { return err != nil && !errors.Is(err, errs.ErrNotFound) }
	s.breakers.Configure(crmBreaker, crm)
	return nil
}

func (s *SafetyEnvelope) rateStore(policy ratelimit.Policy) (ratelimit.Store, error) {
	switch s.rlCfg.Backend {
	case "", BackendMemory:
		return ratelimit.NewMemoryStore(), nil
	case BackendRedis:
		if s.Redis == nil {
			return nil, fmt.Errorf("rate_limit.backend=redis requires the redis component")
		}
		return ratelimit.NewRedisStore(s.Redis.Client(), s.Redis.Prefix(), policy.Widest()), nil
	case BackendDatabase:
		if s.RateDao == nil {
			return nil, fmt.Errorf("rate_limit.backend=database requires %s", bizConsts.COMP_DAO_RATE)
		}
		return s.RateDao, nil
	}
	return nil, fmt.Errorf("unknown rate_limit.backend %q", s.rlCfg.Backend)
}

func (s *SafetyEnvelope) breakerStore() (breaker.StateStore, error) {
	switch s.brCfg.Backend {
	case "", BackendMemory:
		return breaker.NewMemoryStore(), nil
	case BackendRedis:
		if s.Redis == nil {
			return nil, fmt.Errorf("breaker.backend=redis requires the redis component")
		}
		return breaker.NewRedisStore(s.Redis.Client(), s.Redis.Prefix()), nil
	case BackendDatabase:
		if s.BreakerDao == nil {
			return nil, fmt.Errorf("breaker.backend=database requires %s", bizConsts.COMP_DAO_BREAKER)
		}
		return s.BreakerDao, nil
	}
	return nil, fmt.Errorf("unknown breaker.backend %q", s.brCfg.Backend)
}

func (s *SafetyEnvelope) onTransition(name string, from, to breaker.State) {
	logging.Warnf(context.Background(), "circuit breaker %s: %s -> %s", name, from, to)
	s.Metrics.BreakerTransition(name, string(from), string(to))
}

func policyFromConfig(windows []config.WindowConfig) ratelimit.Policy {
	p := make(ratelimit.Policy, 0, len(windows))
	for _, w := range windows {
		p = append(p, ratelimit.Window{Name: w.Name, Size: w.Size, Limit: w.Limit})
	}
	return p
}

func breakerSettings(c config.BreakerSettings) breaker.Settings {
	return breaker.Settings{
		FailureThreshold: c.FailureThreshold,
		VolumeThreshold:  c.VolumeThreshold,
		SuccessThreshold: c.SuccessThreshold,
		Cooldown:         c.Cooldown,
	}
}

func (s *SafetyEnvelope) Accounts() *ratelimit.Limiter { return s.accounts }

func (s *SafetyEnvelope) Breakers() *breaker.Group { return s.breakers }

func (s *SafetyEnvelope) CRM() *breaker.Breaker { return s.breakers.Get(crmBreaker) }

func (s *SafetyEnvelope) Channel(channel string) *breaker.Breaker {
	return s.breakers.Get(channelBreaker(channel))
}

// CampaignCaps returns the limiter for the campaign's hourly/daily caps, or nil when uncapped.
func (s *SafetyEnvelope) CampaignCaps(c *model.Campaign) (*ratelimit.Limiter, error) {
	p := ratelimit.CapPolicy(c.HourlyCap, c.DailyCap)
	if len(p) == 0 {
		return nil, nil
	}
	return ratelimit.NewLimiter(p, s.store, s.clock)
}

// RecordAttempt counts one attempted action against the sender account and the campaign caps.
func (s *SafetyEnvelope) RecordAttempt(ctx context.Context, c *model.Campaign) error {
	if err := s.accounts.RecordEvent(ctx, c.SenderAccount); err != nil {
		return err
	}
	caps, err := s.CampaignCaps(c)
	if err != nil || caps == nil {
		return err
	}
	return caps.RecordEvent(ctx, campaignActor(c.ID))
}
