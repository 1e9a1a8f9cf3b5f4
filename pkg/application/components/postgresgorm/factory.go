package postgresgorm

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("postgres_gorm component disabled")
	}
	if len(cfg.DataSources) == 0 {
		return nil, fmt.Errorf("postgres_gorm has no data_sources")
	}
	for name, ds := range cfg.DataSources {
		if ds == nil {
			return nil, fmt.Errorf("postgres_gorm datasource %s is empty", name)
		}
		if _, err := BuildDSN(ds); err != nil {
			return nil, fmt.Errorf("postgres_gorm datasource %s: %w", name, err)
		}
	}
	return NewPostgresGormComponent(cfg), nil
}
