package prometheus

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("prometheus component disabled")
	}
	if cfg.Address == "" {
		cfg.Address = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	yes := true
	if cfg.CollectGoMetrics == nil {
		cfg.CollectGoMetrics = &yes
	}
	if cfg.CollectProcess == nil {
		cfg.CollectProcess = &yes
	}
	return NewComponent(cfg), nil
}
