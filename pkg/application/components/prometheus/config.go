package prometheus

type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`
	// Address of the dedicated metrics listener, e.g. ":9090".
	Address   string `yaml:"address" json:"address" toml:"address"`
	Path      string `yaml:"path" json:"path" toml:"path"`
	Namespace string `yaml:"namespace" json:"namespace" toml:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem" toml:"subsystem"`
	// Pointers so an explicit false in the file is kept.
	CollectGoMetrics *bool `yaml:"collect_go_metrics" json:"collect_go_metrics" toml:"collect_go_metrics"`
	CollectProcess   *bool `yaml:"collect_process" json:"collect_process" toml:"collect_process"`
}
