package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
)

func TestLoadYAML(t *testing.T) {
	yamlContent := []byte(`
version: "1.0"
roots: [/music]
extensions: [.FLAC, .txt]
latency: 500ms
max_parallel: 2
filetype_settings:
  - extension: .flac
    cmd: /usr/bin/flac2mp3
    args: ["--quality", "2"]
    parallel: true
    timeout: 5m
  - extension: .txt
    cmd: /bin/echo
    keep: false
logging:
  level: debug
`)

	cfg, err := LoadFromBytes(yamlContent, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, []string{"/music"}, cfg.Roots)
	assert.Equal(t, []string{".flac", ".txt"}, cfg.Extensions)
	assert.Equal(t, 500*time.Millisecond, cfg.LatencyDuration())
	assert.Equal(t, 2, cfg.MaxParallel)
	require.Len(t, cfg.FileTypes, 2)

	flac := cfg.FileTypes[0]
	assert.Equal(t, []string{"--quality", "2"}, flac.Args)
	assert.True(t, flac.Parallel)
	assert.True(t, flac.KeepInputs())
	assert.Equal(t, 5*time.Minute, cfg.RuleTimeout(flac))

	txt := cfg.FileTypes[1]
	assert.False(t, txt.KeepInputs())
	assert.Equal(t, 30*time.Minute, cfg.RuleTimeout(txt))

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
}

func TestLoadTOMLAndJSON(t *testing.T) {
	tomlContent := []byte(`
extensions = [".flac"]
notifier = "poll"

[[filetype_settings]]
extension = ".flac"
cmd = "/bin/echo"
`)
	cfg, err := LoadFromBytes(tomlContent, FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, NotifierPoll, cfg.Notifier)
	require.Len(t, cfg.FileTypes, 1)
	assert.Equal(t, "/bin/echo", cfg.FileTypes[0].Command)

	jsonContent := []byte(`{"filetype_settings": [{"extension": ".txt", "cmd": "/bin/echo", "keep": true}], "max_parallel": 3}`)
	cfg, err = LoadFromBytes(jsonContent, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxParallel)
	assert.True(t, cfg.FileTypes[0].KeepInputs())
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromBytes(nil, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, DefaultExtensions, cfg.Extensions)
	assert.Equal(t, NotifierAuto, cfg.Notifier)
	assert.Equal(t, 3*time.Second, cfg.LatencyDuration())
	assert.Equal(t, runtime.NumCPU(), cfg.MaxParallel)
	assert.True(t, cfg.ShouldResumeRoots())
	assert.Empty(t, cfg.FileTypes)
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("WATCHD_TEST_CONVERTER", "/opt/bin/convert")

	cfg, err := LoadFromBytes([]byte(`
filetype_settings:
  - extension: .flac
    cmd: ${WATCHD_TEST_CONVERTER}
  - extension: .txt
    cmd: ${WATCHD_TEST_MISSING:-/bin/echo}
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/convert", cfg.FileTypes[0].Command)
	assert.Equal(t, "/bin/echo", cfg.FileTypes[1].Command)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "convertors: []"},
		{"bad notifier", "notifier: inotify"},
		{"rule without cmd", "filetype_settings:\n  - extension: .flac"},
		{"extension without dot", "filetype_settings:\n  - extension: flac\n    cmd: /bin/echo"},
		{"bad duration", "latency: soon"},
		{"negative parallel", "max_parallel: -1"},
		{"bad ignore pattern", "ignore: ['[']"},
		{"not yaml", "roots: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.content), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestRuleMatches(t *testing.T) {
	rule := FileTypeRule{Extension: ".flac"}
	assert.True(t, rule.Matches("/music/a.flac"))
	assert.True(t, rule.Matches("/music/A.FLAC"))
	assert.False(t, rule.Matches("/music/a.flac.part"))
	assert.False(t, FileTypeRule{}.Matches("/music/a.flac"))
}

func TestLoadDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("WATCHD_HOME", home)
	t.Setenv("WATCHD_CONFIG", "")

	cfg, path, err := LoadDefault("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultExtensions, cfg.Extensions)

	configDir := filepath.Join(home, "config")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	file := filepath.Join(configDir, "watchd.toml")
	require.NoError(t, os.WriteFile(file, []byte(`latency = "1s"`), 0644))

	cfg, path, err = LoadDefault("")
	require.NoError(t, err)
	assert.Equal(t, file, path)
	assert.Equal(t, time.Second, cfg.LatencyDuration())

	_, _, err = LoadDefault(filepath.Join(home, "missing.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.FileTypes = []FileTypeRule{{Extension: ".flac", Command: "/bin/echo"}}

	for _, format := range []Format{FormatYAML, FormatJSON} {
		data, err := cfg.Marshal(format)
		require.NoError(t, err)

		loaded, err := LoadFromBytes(data, format)
		require.NoError(t, err, "format %s:\n%s", format, data)
		assert.Equal(t, cfg.FileTypes, loaded.FileTypes)
	}
}

func TestGenerateSchema(t *testing.T) {
	type section struct {
		Level string `yaml:"level"`
	}
	data, err := GenerateSchema(map[string]interface{}{"logging": &section{}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"filetype_settings"`)
	assert.Contains(t, string(data), `"logging"`)
	assert.NotContains(t, string(data), `"Sections"`)
}
