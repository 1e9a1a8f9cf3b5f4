package redis

import "time"

// Config Mode is single, cluster or sentinel.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Mode    string `yaml:"mode" json:"mode" toml:"mode"`

	Addresses      []string `yaml:"addresses" json:"addresses" toml:"addresses"`
	Username       string   `yaml:"username" json:"username" toml:"username"`
	Password       string   `yaml:"password" json:"password" toml:"password"`
	DB             int      `yaml:"db" json:"db" toml:"db"`
	SentinelMaster string   `yaml:"sentinel_master" json:"sentinel_master" toml:"sentinel_master"`
	// KeyPrefix namespaces every key written by this service.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" toml:"key_prefix"`

	PoolSize     int `yaml:"pool_size" json:"pool_size" toml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns" toml:"min_idle_conns"`

	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" toml:"conn_max_idle_time"`

	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout" toml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
}
