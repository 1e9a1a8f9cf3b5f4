package postgresgorm

import (
	"time"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/gormx"
)

type Config struct {
	Enabled       bool                         `yaml:"enabled" json:"enabled" toml:"enabled"`
	DataSources   map[string]*DataSourceConfig `yaml:"data_sources" json:"data_sources" toml:"data_sources"`
	LogLevel      string                       `yaml:"log_level" json:"log_level" toml:"log_level"`
	SlowThreshold time.Duration                `yaml:"slow_threshold" json:"slow_threshold" toml:"slow_threshold"`
}

type DataSourceConfig struct {
	DSN string `yaml:"dsn" json:"dsn" toml:"dsn"`

	Host     string            `yaml:"host" json:"host" toml:"host"`
	Port     int               `yaml:"port" json:"port" toml:"port"`
	User     string            `yaml:"user" json:"user" toml:"user"`
	Password string            `yaml:"password" json:"password" toml:"password"`
	Database string            `yaml:"database" json:"database" toml:"database"`
	SSLMode  string            `yaml:"sslmode" json:"sslmode" toml:"sslmode"`
	Params   map[string]string `yaml:"params" json:"params" toml:"params"`

	gormx.PoolConfig `yaml:",inline"`
}
