package telemetry

import (
	"errors"
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config, appName string) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("telemetry component disabled")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = appName
	}
	if cfg.ServiceName == "" {
		return nil, errors.New("telemetry.service_name or app_info.app_name must be set")
	}
	cfg.applyDefaults()
	switch cfg.Exporter {
	case ExporterStdout, ExporterNone:
	case ExporterOTLP:
		if cfg.OTLP == nil || cfg.OTLP.Endpoint == "" {
			return nil, errors.New("otlp exporter selected but otlp.endpoint is empty")
		}
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter: %s", cfg.Exporter)
	}
	return NewTelemetryComponent(cfg), nil
}
