package telemetry

import "time"

type ExporterType string

const (
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
	// ExporterNone installs providers and propagators but exports nothing.
	ExporterNone ExporterType = "none"
)

type OTLPConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	Insecure bool          `yaml:"insecure" json:"insecure" toml:"insecure"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
}

type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`
	// ServiceName falls back to app_info.app_name.
	ServiceName    string        `yaml:"service_name" json:"service_name" toml:"service_name"`
	Exporter       ExporterType  `yaml:"exporter" json:"exporter" toml:"exporter"`
	SampleRatio    float64       `yaml:"sample_ratio" json:"sample_ratio" toml:"sample_ratio"`
	MetricInterval time.Duration `yaml:"metric_interval" json:"metric_interval" toml:"metric_interval"`
	OTLP           *OTLPConfig   `yaml:"otlp" json:"otlp" toml:"otlp"`
	StdoutPretty   bool          `yaml:"stdout_pretty" json:"stdout_pretty" toml:"stdout_pretty"`
	StdoutFile     string        `yaml:"stdout_file" json:"stdout_file" toml:"stdout_file"`
}

func (c *Config) applyDefaults() {
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = time.Minute
	}
	if c.OTLP != nil && c.OTLP.Timeout <= 0 {
		c.OTLP.Timeout = 5 * time.Second
	}
}
