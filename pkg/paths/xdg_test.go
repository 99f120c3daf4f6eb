package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdHomeOverridesXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WATCHD_HOME", root)
	t.Setenv("XDG_RUNTIME_DIR", "/should/not/be/used")

	assert.Equal(t, filepath.Join(root, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "state"), StateDir())
	assert.Equal(t, filepath.Join(root, "run", "watchd.sock"), SocketPath())
	assert.Equal(t, filepath.Join(root, "state", "backup.json"), BackupPath())
	assert.Equal(t, filepath.Join(root, "state", "logs", "watchd.log"), LogFilePath())
}

func TestXDGVariables(t *testing.T) {
	t.Setenv("WATCHD_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	assert.Equal(t, "/xdg/config/watchd", ConfigDir())
	assert.Equal(t, "/xdg/state/watchd/watchd.pid", PidFilePath())
	assert.Equal(t, "/run/user/1000/watchd/watchd.sock", SocketPath())
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("WATCHD_HOME", root)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir(), LogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
