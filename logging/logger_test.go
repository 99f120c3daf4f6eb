package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/watchd/config"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
	if NewLogger("test-component") != logger {
		t.Error("Expected the same entry for the same component")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})

	logger.WithField("component", "test").WithField("root", "/music").Info("Test message")

	output := buf.String()
	for _, want := range []string{"[INFO]", "[test]", "Test message", "root=/music"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Time:    time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
				Level:   logrus.WarnLevel,
				Message: "scan failed",
				Data:    logrus.Fields{"component": "coordinator", "b": 2, "a": 1},
			},
			want: []string{"2024-05-06 07:08:09", "[WARN]", "[coordinator]", "scan failed a=1 b=2"},
		},
		{
			name:   "no timestamp or component",
			config: FormatConfig{DisableTimestamp: true, DisableComponent: true},
			entry: &logrus.Entry{
				Time:    time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
				Level:   logrus.ErrorLevel,
				Message: "boom",
				Data:    logrus.Fields{"component": "server"},
			},
			want:    []string{"[ERROR] boom"},
			notWant: []string{"2024", "[server]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := (&TextFormatter{Config: tt.config}).Format(tt.entry)
			if err != nil {
				t.Fatalf("Format returned error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(out), want) {
					t.Errorf("expected %q in %q", want, out)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(string(out), notWant) {
					t.Errorf("did not expect %q in %q", notWant, out)
				}
			}
		})
	}
}

func TestEnvironmentLevelOverride(t *testing.T) {
	t.Setenv("WATCHD_LOG_LEVEL", "debug")
	Configure(Config{Level: "error"})
	defer Configure(Config{})

	logger := NewLogger("env-level")
	if logger.Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level from environment, got %s", logger.Logger.GetLevel())
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "watchd.log")
	Configure(Config{File: FileSinkConfig{Enabled: true, Path: path}})
	defer func() {
		_ = Close()
		Configure(Config{})
	}()

	if LogFile() != path {
		t.Fatalf("expected log file %s, got %s", path, LogFile())
	}

	NewLogger("file-sink").Warn("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
	if strings.Contains(string(data), "\x1b[") {
		t.Errorf("log file must not contain ANSI escapes: %q", data)
	}
}

func TestConfigureFromSettings(t *testing.T) {
	t.Setenv("WATCHD_HOME", t.TempDir())
	t.Setenv("WATCHD_LOG_LEVEL", "")

	settings, err := config.LoadFromBytes([]byte("logging:\n  level: warn\n"), config.FormatYAML)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if err := ConfigureFromSettings(settings, true); err != nil {
		t.Fatalf("ConfigureFromSettings: %v", err)
	}
	defer func() {
		_ = Close()
		Configure(Config{})
	}()

	if NewLogger("from-settings").Logger.GetLevel() != logrus.WarnLevel {
		t.Error("expected warn level from settings")
	}
	if LogFile() == "" {
		t.Error("daemon mode should enable the file sink")
	}
}

func TestFilePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WATCHD_HOME", dir)

	if got := FilePath(nil); !strings.HasPrefix(got, dir) {
		t.Errorf("default log path %q should live under %q", got, dir)
	}

	custom := filepath.Join(dir, "custom.log")
	settings, err := config.LoadFromBytes([]byte("logging:\n  file:\n    path: "+custom+"\n"), config.FormatYAML)
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	if got := FilePath(settings); got != custom {
		t.Errorf("FilePath = %q, want %q", got, custom)
	}
}

func TestShouldLogToStderr(t *testing.T) {
	t.Setenv("WATCHD_DEBUG", "")
	cases := []struct {
		mode        string
		level       logrus.Level
		interactive bool
		hasFile     bool
		want        bool
	}{
		{"always", logrus.InfoLevel, true, true, true},
		{"never", logrus.DebugLevel, false, false, false},
		{"auto", logrus.InfoLevel, true, false, true},
		{"auto", logrus.InfoLevel, true, true, false},
		{"auto", logrus.InfoLevel, false, true, true},
		{"auto", logrus.DebugLevel, true, true, true},
	}
	for _, c := range cases {
		cfg := Config{Format: FormatConfig{StructuredToStderr: c.mode}}
		if got := shouldLogToStderr(cfg, c.level, c.interactive, c.hasFile); got != c.want {
			t.Errorf("%+v: got %v", c, got)
		}
	}
}

func TestContextWriter(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithWriter(context.Background(), &buf)
	if GetWriter(ctx) != &buf {
		t.Error("expected the attached writer")
	}
	if GetWriter(context.Background()) != GetGlobalOutput() {
		t.Error("expected the global writer as fallback")
	}
}

func TestGlobalOutputSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := SetGlobalOutput(&buf)
	defer SetGlobalOutput(prev)

	_, _ = GetGlobalOutput().Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("expected redirected output, got %q", buf.String())
	}
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Success("daemon stopped")
	p.List("New files", []string{"/music/a.flac", "/music/b.flac"})
	p.WarnPretty("2 files failed to convert")
	p.Divider()

	out := buf.String()
	for _, want := range []string{"daemon stopped", "New files", "(2)", "/music/b.flac", "failed to convert", "───"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}
