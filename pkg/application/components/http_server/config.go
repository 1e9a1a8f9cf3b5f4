package http_server

import "time"

type HTTPServerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Address string `yaml:"address" json:"address" toml:"address"`
	// ReadTimeout bounds reading the whole request and guards against slow clients.
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
	// HandlerTimeout cancels the request context of slow handlers.
	HandlerTimeout  time.Duration `yaml:"handler_timeout" json:"handler_timeout" toml:"handler_timeout"`
	GracefulTimeout time.Duration `yaml:"graceful_timeout" json:"graceful_timeout" toml:"graceful_timeout"`
	EnableHealth    bool          `yaml:"enable_health" json:"enable_health" toml:"enable_health"`
	CORS            *CORSConfig   `yaml:"cors" json:"cors" toml:"cors"`

	// ServiceName is injected from app_info.app_name.
	ServiceName string `yaml:"-" json:"-" toml:"-"`
}

type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" json:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" json:"allowed_headers" toml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" json:"allow_credentials" toml:"allow_credentials"`
	MaxAgeSeconds    int      `yaml:"max_age_seconds" json:"max_age_seconds" toml:"max_age_seconds"`
}
