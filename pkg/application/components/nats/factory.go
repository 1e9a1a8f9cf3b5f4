package nats

import (
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("nats component disabled")
	}
	setDefaults(cfg)
	return NewNatsComponent(cfg), nil
}

func setDefaults(cfg *Config) {
	if cfg.URL == "" {
		cfg.URL = natsgo.DefaultURL
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
}
