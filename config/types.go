package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Notifier backends accepted in the `notifier` setting.
const (
	NotifierAuto     = "auto"
	NotifierFSNotify = "fsnotify"
	NotifierPoll     = "poll"
)

// Defaults applied by SetDefaults.
const (
	DefaultVersion        = "1.0"
	DefaultLatency        = "3s"
	DefaultPollInterval   = "2s"
	DefaultCommandTimeout = "30m"
)

// DefaultExtensions is the interest filter used when none is configured.
var DefaultExtensions = []string{".flac", ".txt"}

// Config is the watchd settings document (watchd.yml / .toml / .json).
type Config struct {
	Version         string         `yaml:"version" json:"version,omitempty" toml:"version" jsonschema:"description=Settings format version (e.g. '1.0')"`
	Roots           []string       `yaml:"roots,omitempty" json:"roots,omitempty" toml:"roots" jsonschema:"description=Directories watched when none are given on the command line"`
	Extensions      []string       `yaml:"extensions,omitempty" json:"extensions,omitempty" toml:"extensions" jsonschema:"description=File extensions of interest including the leading dot"`
	Ignore          []string       `yaml:"ignore,omitempty" json:"ignore,omitempty" toml:"ignore" jsonschema:"description=Exclusion patterns relative to each root"`
	BackupFile      string         `yaml:"backup_file,omitempty" json:"backup_file,omitempty" toml:"backup_file" jsonschema:"description=Path of the persisted index and cursor"`
	Socket          string         `yaml:"socket,omitempty" json:"socket,omitempty" toml:"socket" jsonschema:"description=Control socket path"`
	Notifier        string         `yaml:"notifier,omitempty" json:"notifier,omitempty" toml:"notifier" jsonschema:"enum=auto,enum=fsnotify,enum=poll,description=Change notification backend"`
	Latency         string         `yaml:"latency,omitempty" json:"latency,omitempty" toml:"latency" jsonschema:"description=Coalescing latency for change notifications"`
	PollInterval    string         `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty" toml:"poll_interval" jsonschema:"description=Interval of the poll backend"`
	MaxParallel     int            `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" toml:"max_parallel" jsonschema:"minimum=0,description=Upper bound on concurrently running converters (0 means number of CPUs)"`
	CommandTimeout  string         `yaml:"command_timeout,omitempty" json:"command_timeout,omitempty" toml:"command_timeout" jsonschema:"description=Default timeout of one converter run (0 disables)"`
	ProcessExisting bool           `yaml:"process_existing,omitempty" json:"process_existing,omitempty" toml:"process_existing" jsonschema:"description=Dispatch files already present when a root is first tracked"`
	ResumeRoots     *bool          `yaml:"resume_roots,omitempty" json:"resume_roots,omitempty" toml:"resume_roots" jsonschema:"description=Re-track roots recorded in the backup file"`
	FileTypes       []FileTypeRule `yaml:"filetype_settings,omitempty" json:"filetype_settings,omitempty" toml:"filetype_settings" jsonschema:"description=Ordered converter rules"`

	// Extensions captures all other top-level keys (e.g. logging).
	Sections map[string]interface{} `yaml:",inline" json:"-" toml:"-" jsonschema:"-"`
}

// FileTypeRule maps files with a given extension to a converter command.
type FileTypeRule struct {
	Extension string   `yaml:"extension" json:"extension" toml:"extension" jsonschema:"required,pattern=^\\.,description=Extension including the leading dot"`
	Command   string   `yaml:"cmd" json:"cmd" toml:"cmd" jsonschema:"required,minLength=1,description=Converter executable"`
	Args      []string `yaml:"args,omitempty" json:"args,omitempty" toml:"args" jsonschema:"description=Fixed arguments placed before the file arguments"`
	Keep      *bool    `yaml:"keep,omitempty" json:"keep,omitempty" toml:"keep" jsonschema:"description=Keep input files after a successful run (default true)"`
	Parallel  bool     `yaml:"parallel,omitempty" json:"parallel,omitempty" toml:"parallel" jsonschema:"description=Run one converter per file instead of one per batch"`
	Timeout   string   `yaml:"timeout,omitempty" json:"timeout,omitempty" toml:"timeout" jsonschema:"description=Overrides command_timeout for this rule"`
}

// KeepInputs reports whether input files survive a successful run.
func (r FileTypeRule) KeepInputs() bool {
	return r.Keep == nil || *r.Keep
}

// Matches reports whether path carries the rule's extension. Comparison is
// case-insensitive.
func (r FileTypeRule) Matches(path string) bool {
	ext := strings.ToLower(r.Extension)
	return ext != "" && strings.HasSuffix(strings.ToLower(path), ext)
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if c.Notifier == "" {
		c.Notifier = NotifierAuto
	}
	if c.Latency == "" {
		c.Latency = DefaultLatency
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval
	}
	if c.CommandTimeout == "" {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = runtime.NumCPU()
	}
	if c.ResumeRoots == nil {
		resume := true
		c.ResumeRoots = &resume
	}
	for i := range c.Extensions {
		c.Extensions[i] = strings.ToLower(c.Extensions[i])
	}
}

// LatencyDuration returns the parsed coalescing latency.
func (c *Config) LatencyDuration() time.Duration {
	return mustDuration(c.Latency, DefaultLatency)
}

// PollIntervalDuration returns the parsed poll interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return mustDuration(c.PollInterval, DefaultPollInterval)
}

// CommandTimeoutDuration returns the default per-child timeout. Zero disables it.
func (c *Config) CommandTimeoutDuration() time.Duration {
	return mustDuration(c.CommandTimeout, DefaultCommandTimeout)
}

// RuleTimeout returns the timeout that applies to a rule.
func (c *Config) RuleTimeout(r FileTypeRule) time.Duration {
	if r.Timeout != "" {
		return mustDuration(r.Timeout, c.CommandTimeout)
	}
	return c.CommandTimeoutDuration()
}

// ShouldResumeRoots reports whether roots recorded in the backup are re-tracked.
func (c *Config) ShouldResumeRoots() bool {
	return c.ResumeRoots == nil || *c.ResumeRoots
}

func mustDuration(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// UnmarshalExtension decodes a top-level section that is not part of the core
// settings (for example `logging`) into target, which must be a pointer.
// A missing section leaves target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	section, ok := c.Sections[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(section); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}
