package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("redis component disabled")
	}
	setDefaults(cfg)
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("redis addresses empty")
	}
	switch cfg.Mode {
	case "single", "cluster":
	case "sentinel":
		if cfg.SentinelMaster == "" {
			return nil, fmt.Errorf("sentinel mode requires sentinel_master")
		}
	default:
		return nil, fmt.Errorf("unknown redis mode: %s", cfg.Mode)
	}
	return NewRedisComponent(cfg), nil
}

func setDefaults(cfg *Config) {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "single"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "outreach:"
	}
}
