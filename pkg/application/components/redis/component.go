package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type RedisComponent struct {
	*core.BaseComponent
	cfg    *Config
	client redis.UniversalClient
	owned  bool
}

func NewRedisComponent(cfg *Config) *RedisComponent {
	return &RedisComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_REDIS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		owned:         true,
	}
}

// NewRedisComponentWithClient wraps a client built elsewhere. Stop leaves it open.
func NewRedisComponentWithClient(client redis.UniversalClient, keyPrefix string) *RedisComponent {
	return &RedisComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_REDIS),
		cfg:           &Config{Enabled: true, Mode: "single", KeyPrefix: keyPrefix},
		client:        client,
	}
}

func (rc *RedisComponent) Start(ctx context.Context) error {
	if err := rc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if rc.client == nil {
		rc.client = redis.NewUniversalClient(rc.options())
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.ping(pingCtx); err != nil {
		if rc.owned {
			_ = rc.client.Close()
			rc.client = nil
		}
		return fmt.Errorf("redis ping failed: %w", err)
	}
	logging.Info(ctx, "redis component started",
		zap.String("mode", rc.cfg.Mode),
		zap.Strings("addrs", rc.cfg.Addresses))
	return nil
}

func (rc *RedisComponent) options() *redis.UniversalOptions {
	addrs := rc.cfg.Addresses
	if rc.cfg.Mode == "single" && len(addrs) > 1 {
		// more than one address would make UniversalClient build a cluster client
		addrs = addrs[:1]
	}
	opts := &redis.UniversalOptions{
		Addrs:           addrs,
		DB:              rc.cfg.DB,
		Username:        rc.cfg.Username,
		Password:        rc.cfg.Password,
		PoolSize:        rc.cfg.PoolSize,
		MinIdleConns:    rc.cfg.MinIdleConns,
		DialTimeout:     rc.cfg.DialTimeout,
		ReadTimeout:     rc.cfg.ReadTimeout,
		WriteTimeout:    rc.cfg.WriteTimeout,
		ConnMaxLifetime: rc.cfg.ConnMaxLifetime,
		ConnMaxIdleTime: rc.cfg.ConnMaxIdleTime,
	}
	if rc.cfg.Mode == "sentinel" {
		opts.MasterName = rc.cfg.SentinelMaster
	}
	return opts
}

func (rc *RedisComponent) Stop(ctx context.Context) error {
	if rc.client != nil && rc.owned {
		if err := rc.client.Close(); err != nil {
			logging.Warn(ctx, "redis close failed", zap.Error(err))
		}
		rc.client = nil
	}
	return rc.BaseComponent.Stop(ctx)
}

func (rc *RedisComponent) HealthCheck() error {
	if err := rc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return rc.ping(ctx)
}

func (rc *RedisComponent) ping(ctx context.Context) error {
	if rc.client == nil {
		return errors.New("redis client not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisComponent) Client() redis.UniversalClient { return rc.client }

// Prefix is the namespace with its trailing ':' for stores that build their own keys.
func (rc *RedisComponent) Prefix() string {
	if rc.cfg.KeyPrefix == "" {
		return ""
	}
	return rc.cfg.KeyPrefix + ":"
}

// Key joins the configured namespace and parts with ':'.
func (rc *RedisComponent) Key(parts ...string) string {
	if rc.cfg.KeyPrefix == "" {
		return strings.Join(parts, ":")
	}
	return rc.cfg.KeyPrefix + ":" + strings.Join(parts, ":")
}
