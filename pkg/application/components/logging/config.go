package logging

type LoggingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Level   string `yaml:"level" json:"level" toml:"level"`
	// Format is json or console.
	Format string `yaml:"format" json:"format" toml:"format"`
	// Output is stdout, stderr, file (uses FileConfig) or a literal file path.
	Output       string        `yaml:"output" json:"output" toml:"output"`
	FileConfig   *FileConfig   `yaml:"file_config,omitempty" json:"file_config,omitempty" toml:"file_config"`
	RotateConfig *RotateConfig `yaml:"rotate_config,omitempty" json:"rotate_config,omitempty" toml:"rotate_config"`
}

type FileConfig struct {
	Dir      string `yaml:"dir" json:"dir" toml:"dir"`
	Filename string `yaml:"filename" json:"filename" toml:"filename"`
}

// RotateConfig drives lumberjack size based rotation.
type RotateConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled" toml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb" json:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups" json:"max_backups" toml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days" json:"max_age_days" toml:"max_age_days"`
	Compress   bool `yaml:"compress" json:"compress" toml:"compress"`
}
