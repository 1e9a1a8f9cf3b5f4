package nats

import "time"

type Config struct {
	Enabled        bool          `yaml:"enabled" json:"enabled" toml:"enabled"`
	URL            string        `yaml:"url" json:"url" toml:"url"`
	Name           string        `yaml:"name" json:"name" toml:"name"`
	Token          string        `yaml:"token" json:"token" toml:"token"`
	User           string        `yaml:"user" json:"user" toml:"user"`
	Password       string        `yaml:"password" json:"password" toml:"password"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" json:"reconnect_wait" toml:"reconnect_wait"`
	MaxReconnects  int           `yaml:"max_reconnects" json:"max_reconnects" toml:"max_reconnects"` // -1 = unlimited
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" toml:"connect_timeout"`
}
