package http_server

import (
	"fmt"
	"time"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct {
	container *core.Container
}

func NewFactory(c *core.Container) *Factory { return &Factory{container: c} }

func (f *Factory) Create(cfg *HTTPServerConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("http_server component disabled")
	}
	applyDefaults(cfg)
	return NewHTTPServerComponent(cfg, f.container), nil
}

func applyDefaults(cfg *HTTPServerConfig) {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.HandlerTimeout == 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "outreach-coordinator"
	}
	if c := cfg.CORS; c != nil && c.Enabled {
		if len(c.AllowedMethods) == 0 {
			c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
		}
		if len(c.AllowedHeaders) == 0 {
			c.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "traceparent"}
		}
	}
}
