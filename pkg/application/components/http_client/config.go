package http_client

import (
	"strings"
	"time"
)

type RetryConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

type HTTPClientConfig struct {
	BaseURL             string            `yaml:"base_url" json:"base_url" toml:"base_url"`
	Timeout             time.Duration     `yaml:"timeout" json:"timeout" toml:"timeout"`
	MaxIdleConns        int               `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns"`
	MaxIdleConnsPerHost int               `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host" toml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration     `yaml:"idle_conn_timeout" json:"idle_conn_timeout" toml:"idle_conn_timeout"`
	DefaultHeaders      map[string]string `yaml:"default_headers" json:"default_headers" toml:"default_headers"`
	Retry               *RetryConfig      `yaml:"retry" json:"retry" toml:"retry"`
}

type HTTPClientsConfig struct {
	Enabled bool                         `yaml:"enabled" json:"enabled" toml:"enabled"`
	Default string                       `yaml:"default" json:"default" toml:"default"`
	Clients map[string]*HTTPClientConfig `yaml:"clients" json:"clients" toml:"clients"`
}

func (c *HTTPClientsConfig) applyDefaults() {
	if c.Clients == nil {
		c.Clients = map[string]*HTTPClientConfig{}
	}
	if c.Default == "" {
		c.Default = "default"
	}
	if _, ok := c.Clients[c.Default]; !ok {
		c.Clients[c.Default] = &HTTPClientConfig{}
	}
	for _, cfg := range c.Clients {
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Second
		}
		if cfg.MaxIdleConns == 0 {
			cfg.MaxIdleConns = 100
		}
		if cfg.MaxIdleConnsPerHost == 0 {
			cfg.MaxIdleConnsPerHost = 20
		}
		if cfg.IdleConnTimeout == 0 {
			cfg.IdleConnTimeout = 90 * time.Second
		}
		if cfg.DefaultHeaders == nil {
			cfg.DefaultHeaders = map[string]string{}
		}
		if r := cfg.Retry; r != nil {
			if r.MaxAttempts <= 0 {
				r.MaxAttempts = 3
			}
			if r.InitialBackoff <= 0 {
				r.InitialBackoff = 100 * time.Millisecond
			}
			if r.MaxBackoff <= 0 {
				r.MaxBackoff = 2 * time.Second
			}
			if r.BackoffMultiplier <= 1 {
				r.BackoffMultiplier = 2
			}
		}
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
}
