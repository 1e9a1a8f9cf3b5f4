package logging

import (
	"fmt"
	"strings"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *LoggingConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("logging component is disabled")
	}
	f.setDefaults(cfg)
	if err := f.validate(cfg); err != nil {
		return nil, err
	}
	return NewLoggerComponent(cfg), nil
}

func (f *Factory) setDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if strings.EqualFold(cfg.Output, "file") && cfg.FileConfig == nil {
		cfg.FileConfig = &FileConfig{Dir: "./logs", Filename: "outreach"}
	}
	if rc := cfg.RotateConfig; rc != nil && rc.Enabled && rc.MaxSizeMB == 0 {
		rc.MaxSizeMB = 100
	}
}

func (f *Factory) validate(cfg *LoggingConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Format)
	}
	if _, err := parseLevel(cfg.Level); err != nil {
		return err
	}
	if rc := cfg.RotateConfig; rc != nil && rc.Enabled {
		if rc.MaxSizeMB < 0 || rc.MaxBackups < 0 || rc.MaxAgeDays < 0 {
			return fmt.Errorf("logging.rotate_config values must be >= 0")
		}
	}
	return nil
}
