package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/pkg/paths"
	"github.com/grovetools/watchd/util/pathutil"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	current   Config
	fileSink  *lumberjack.Logger
)

// NewLogger returns the logger for a component, creating it on first use.
// Every entry carries a `component` field.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if entry, exists := loggers[component]; exists {
		return entry
	}

	logger := logrus.New()
	apply(logger)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Configure replaces the logging configuration and re-applies it to every
// logger created so far.
func Configure(cfg Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	current = cfg
	if fileSink != nil {
		_ = fileSink.Close()
		fileSink = nil
	}
	if cfg.File.Enabled {
		path := cfg.File.resolvedPath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			fileSink = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    orDefault(cfg.File.MaxSizeMB, 20),
				MaxBackups: orDefault(cfg.File.MaxBackups, 5),
				MaxAge:     cfg.File.MaxAgeDays,
				Compress:   cfg.File.Compress,
			}
		}
	}

	for _, entry := range loggers {
		apply(entry.Logger)
	}
}

// ConfigureFromSettings reads the `logging` section of the settings file.
// Daemon mode always writes to the rotating file sink, at file.path or the
// default log path.
func ConfigureFromSettings(settings *config.Config, daemon bool) error {
	var cfg Config
	if settings != nil {
		if err := settings.UnmarshalExtension("logging", &cfg); err != nil {
			Configure(cfg)
			return err
		}
	}
	if daemon {
		cfg.File.Enabled = true
	}
	Configure(cfg)
	return nil
}

// FilePath returns the log file the daemon writes for the given settings,
// whether or not a sink is active in this process.
func FilePath(settings *config.Config) string {
	var cfg Config
	if settings != nil {
		_ = settings.UnmarshalExtension("logging", &cfg)
	}
	return cfg.File.resolvedPath()
}

func (c FileSinkConfig) resolvedPath() string {
	path := c.Path
	if path == "" {
		path = paths.LogFilePath()
	}
	if expanded, err := pathutil.Expand(path); err == nil {
		path = expanded
	}
	return path
}

// LogFile returns the active file sink path, or "" when none is configured.
func LogFile() string {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	if fileSink == nil {
		return ""
	}
	return fileSink.Filename
}

// Close flushes and closes the file sink.
func Close() error {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
}

func apply(logger *logrus.Logger) {
	cfg := current

	levelStr := "info"
	if env := os.Getenv("WATCHD_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(os.Getenv("WATCHD_LOG_CALLER") == "true" || cfg.ReportCaller)

	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	logger.SetFormatter(consoleFormatter(cfg.Format, interactive))

	logger.ReplaceHooks(make(logrus.LevelHooks))
	if fileSink != nil {
		logger.AddHook(&fileHook{writer: fileSink, formatter: fileFormatter(cfg)})
	}

	if shouldLogToStderr(cfg, level, interactive, fileSink != nil) {
		logger.SetOutput(defaultGlobalWriter)
	} else {
		logger.SetOutput(io.Discard)
	}
}

func consoleFormatter(format FormatConfig, colour bool) logrus.Formatter {
	switch format.Preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{DisableTimestamp: true, DisableComponent: true}}
	default:
		return &TextFormatter{Config: format, Colour: colour}
	}
}

func fileFormatter(cfg Config) logrus.Formatter {
	if cfg.File.Format == "json" || cfg.Format.Preset == "json" {
		return &logrus.JSONFormatter{}
	}
	return &TextFormatter{Config: FormatConfig{DisableComponent: cfg.Format.DisableComponent}}
}

// shouldLogToStderr applies the structured_to_stderr policy. In "auto" mode
// console output is suppressed only when a file sink takes the logs and
// stderr is an interactive terminal, unless debugging.
func shouldLogToStderr(cfg Config, level logrus.Level, interactive, hasFile bool) bool {
	switch cfg.Format.StructuredToStderr {
	case "always":
		return true
	case "never":
		return false
	}
	if level >= logrus.DebugLevel || os.Getenv("WATCHD_DEBUG") == "1" {
		return true
	}
	return !hasFile || !interactive
}

// fileHook writes every entry to the shared file sink with its own formatter.
type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
