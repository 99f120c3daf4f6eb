package logging

// Config defines the `logging` section of the settings file.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the WATCHD_LOG_LEVEL environment variable.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// ReportCaller includes the file, line, and function name in the log output.
	// Can be enabled with WATCHD_LOG_CALLER=true.
	ReportCaller bool `yaml:"report_caller,omitempty" json:"report_caller,omitempty"`

	File   FileSinkConfig `yaml:"file,omitempty" json:"file,omitempty"`
	Format FormatConfig   `yaml:"format,omitempty" json:"format,omitempty"`
}

// FileSinkConfig configures the rotating log file shared by all components.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Format  string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=text,enum=json"`

	MaxSizeMB  int  `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int  `yaml:"max_age_days,omitempty" json:"max_age_days,omitempty"`
	Compress   bool `yaml:"compress,omitempty" json:"compress,omitempty"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset           string `yaml:"preset,omitempty" json:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	DisableTimestamp bool   `yaml:"disable_timestamp,omitempty" json:"disable_timestamp,omitempty"`
	DisableComponent bool   `yaml:"disable_component,omitempty" json:"disable_component,omitempty"`
	// StructuredToStderr is "auto" (default), "always", or "never".
	StructuredToStderr string `yaml:"structured_to_stderr,omitempty" json:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}
