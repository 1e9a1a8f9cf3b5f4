package config

import (
	"sync"
	"time"
)

// BizConfig 业务配置 (对应 biz_config 小节)
type BizConfig struct {
	Storage      StorageConfig      `yaml:"storage" json:"storage" toml:"storage"`
	Claim        ClaimConfig        `yaml:"claim" json:"claim" toml:"claim"`
	Retry        RetryConfig        `yaml:"retry" json:"retry" toml:"retry"`
	Promoter     ScannerConfig      `yaml:"promoter" json:"promoter" toml:"promoter"`
	Sweeper      ScannerConfig      `yaml:"sweeper" json:"sweeper" toml:"sweeper"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`
	Breaker      BreakerConfig      `yaml:"breaker" json:"breaker" toml:"breaker"`
	Auth         AuthConfig         `yaml:"auth" json:"auth" toml:"auth"`
	RunnerConfig RunnerConfigSource `yaml:"runner_config" json:"runner_config" toml:"runner_config"`
	Presence     PresenceConfig     `yaml:"presence" json:"presence" toml:"presence"`
	Collab       CollaboratorConfig `yaml:"collaborators" json:"collaborators" toml:"collaborators"`
}

type StorageConfig struct {
	// Driver is mysql or postgres; the matching *_gorm component must be enabled.
	Driver     string `yaml:"driver" json:"driver" toml:"driver"`
	DataSource string `yaml:"data_source" json:"data_source" toml:"data_source"`
}

type ClaimConfig struct {
	// LeaseTimeout is also the runner liveness timeout (3 x 30s poll).
	LeaseTimeout time.Duration `yaml:"lease_timeout" json:"lease_timeout" toml:"lease_timeout"`
	// CASRetries and CandidateBatch bound the compare-and-swap claim path.
	CASRetries     int `yaml:"cas_retries" json:"cas_retries" toml:"cas_retries"`
	CandidateBatch int `yaml:"candidate_batch" json:"candidate_batch" toml:"candidate_batch"`
	// SkipLocked uses SELECT ... FOR UPDATE SKIP LOCKED on mysql/postgres.
	SkipLocked *bool `yaml:"skip_locked" json:"skip_locked" toml:"skip_locked"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	BackoffBase int           `yaml:"backoff_base" json:"backoff_base" toml:"backoff_base"`
	BackoffUnit time.Duration `yaml:"backoff_unit" json:"backoff_unit" toml:"backoff_unit"`
}

type ScannerConfig struct {
	Enabled   *bool         `yaml:"enabled" json:"enabled" toml:"enabled"`
	Interval  time.Duration `yaml:"interval" json:"interval" toml:"interval"`
	BatchSize int           `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
}

func (s ScannerConfig) On() bool { return s.Enabled == nil || *s.Enabled }

type WindowConfig struct {
	Name  string        `yaml:"name" json:"name" toml:"name"`
	Size  time.Duration `yaml:"size" json:"size" toml:"size"`
	Limit int           `yaml:"limit" json:"limit" toml:"limit"`
}

type RateLimitConfig struct {
	// Backend is memory, redis or database.
	Backend string         `yaml:"backend" json:"backend" toml:"backend"`
	Windows []WindowConfig `yaml:"windows" json:"windows" toml:"windows"`
}

type BreakerSettings struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" toml:"failure_threshold"`
	VolumeThreshold  int           `yaml:"volume_threshold" json:"volume_threshold" toml:"volume_threshold"`
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold" toml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown" toml:"cooldown"`
}

type BreakerConfig struct {
	Backend string          `yaml:"backend" json:"backend" toml:"backend"`
	Channel BreakerSettings `yaml:"channel" json:"channel" toml:"channel"`
	CRM     BreakerSettings `yaml:"crm" json:"crm" toml:"crm"`
}

// RunnerCredential maps a runner to the sha256 hex of its bearer token.
type RunnerCredential struct {
	RunnerID    string `yaml:"runner_id" json:"runner_id" toml:"runner_id"`
	TokenSHA256 string `yaml:"token_sha256" json:"token_sha256" toml:"token_sha256"`
}

type AuthConfig struct {
	Runners []RunnerCredential `yaml:"runners" json:"runners" toml:"runners"`
}

type RunnerConfigSource struct {
	Path  string `yaml:"path" json:"path" toml:"path"`
	Watch bool   `yaml:"watch" json:"watch" toml:"watch"`
}

type PresenceConfig struct {
	// Redis writes a presence key per heartbeat when the redis component is enabled.
	Redis bool `yaml:"redis" json:"redis" toml:"redis"`
}

type CollaboratorConfig struct {
	// RendererClient names an http_clients entry; empty renders the template verbatim.
	RendererClient string `yaml:"renderer_client" json:"renderer_client" toml:"renderer_client"`
	RendererPath   string `yaml:"renderer_path" json:"renderer_path" toml:"renderer_path"`
	// DirectoryBackend is database or http.
	DirectoryBackend string `yaml:"directory_backend" json:"directory_backend" toml:"directory_backend"`
	DirectoryClient  string `yaml:"directory_client" json:"directory_client" toml:"directory_client"`
	AuditSubject     string `yaml:"audit_subject" json:"audit_subject" toml:"audit_subject"`
}

var (
	bizCfg  *BizConfig
	bizOnce sync.Once
)

// GetBizConfig returns the process-wide instance. It is handed to the config loader before
// load, so builders must read fields at build time, not in init().
func GetBizConfig() *BizConfig {
	bizOnce.Do(func() { bizCfg = Default() })
	return bizCfg
}

func Default() *BizConfig {
	c := &BizConfig{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *BizConfig) ApplyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "mysql"
	}
	if c.Storage.DataSource == "" {
		c.Storage.DataSource = "default"
	}
	if c.Claim.LeaseTimeout <= 0 {
		c.Claim.LeaseTimeout = 90 * time.Second
	}
	if c.Claim.CASRetries <= 0 {
		c.Claim.CASRetries = 5
	}
	if c.Claim.CandidateBatch <= 0 {
		c.Claim.CandidateBatch = 8
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BackoffBase <= 1 {
		c.Retry.BackoffBase = 2
	}
	if c.Retry.BackoffUnit <= 0 {
		c.Retry.BackoffUnit = 10 * time.Minute
	}
	defaultScanner(&c.Promoter, 15*time.Second)
	defaultScanner(&c.Sweeper, 30*time.Second)
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if len(c.RateLimit.Windows) == 0 {
		c.RateLimit.Windows = []WindowConfig{
			{Name: "minute", Size: time.Minute, Limit: 2},
			{Name: "hour", Size: time.Hour, Limit: 20},
			{Name: "day", Size: 24 * time.Hour, Limit: 100},
			{Name: "week", Size: 7 * 24 * time.Hour, Limit: 400},
		}
	}
	if c.Breaker.Backend == "" {
		c.Breaker.Backend = "memory"
	}
	defaultBreaker(&c.Breaker.Channel, 5, 10, 2, 5*time.Minute)
	defaultBreaker(&c.Breaker.CRM, 3, 5, 1, 30*time.Second)
	if c.Collab.DirectoryBackend == "" {
		c.Collab.DirectoryBackend = "database"
	}
	if c.Collab.RendererPath == "" {
		c.Collab.RendererPath = "/render"
	}
}

func defaultScanner(s *ScannerConfig, interval time.Duration) {
	if s.Interval <= 0 {
		s.Interval = interval
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 500
	}
}

func defaultBreaker(b *BreakerSettings, failures, volume, successes int, cooldown time.Duration) {
	if b.FailureThreshold <= 0 {
		b.FailureThreshold = failures
	}
	if b.VolumeThreshold <= 0 {
		b.VolumeThreshold = volume
	}
	if b.SuccessThreshold <= 0 {
		b.SuccessThreshold = successes
	}
	if b.Cooldown <= 0 {
		b.Cooldown = cooldown
	}
}

// UseSkipLocked defaults to true.
func (c ClaimConfig) UseSkipLocked() bool { return c.SkipLocked == nil || *c.SkipLocked }
