package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/testutil"
)

func TestRestartRequired(t *testing.T) {
	base := config.Default()

	logOnly := *base
	logOnly.Sections = map[string]interface{}{"logging": map[string]interface{}{"level": "debug"}}
	assert.False(t, restartRequired(base, &logOnly))

	moreRoots := *base
	moreRoots.Roots = []string{"/music"}
	assert.True(t, restartRequired(base, &moreRoots))

	assert.False(t, restartRequired(nil, base))
}

func TestSettingsWatcher_ReloadsOnWrite(t *testing.T) {
	dir := testutil.ResolvedTempDir(t)
	path := filepath.Join(dir, "watchd.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0644))

	current, err := config.Load(path)
	require.NoError(t, err)

	reloaded := make(chan *config.Config, 4)
	w := NewSettingsWatcher(path, current, 10*time.Millisecond, func(c *config.Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan error, 1)
	go func() { started <- w.Start(ctx) }()

	// fsnotify needs the watch installed before the write is observed.
	testutil.WaitFor(t, 5*time.Second, func() bool {
		_ = os.WriteFile(path, []byte("version: \"1.0\"\nlatency: 1s\n"), 0644)
		select {
		case c := <-reloaded:
			return c.Latency == "1s"
		default:
			return false
		}
	}, "settings change was not picked up")

	cancel()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestSettingsWatcher_AppliesLastWriteOfBurst(t *testing.T) {
	dir := testutil.ResolvedTempDir(t)
	path := filepath.Join(dir, "watchd.yml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\n"), 0644))

	current, err := config.Load(path)
	require.NoError(t, err)

	reloaded := make(chan *config.Config, 64)
	w := NewSettingsWatcher(path, current, 100*time.Millisecond, func(c *config.Config) { reloaded <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	testutil.WaitFor(t, 5*time.Second, func() bool {
		_ = os.WriteFile(path, []byte("version: \"1.0\"\nlatency: 1s\n"), 0644)
		return w.Current().Latency == "1s"
	}, "watcher never became ready")

	time.Sleep(300 * time.Millisecond)
	for len(reloaded) > 0 {
		<-reloaded
	}

	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\nlatency: 5s\n"), 0644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\nlatency: 9s\n"), 0644))

	testutil.WaitFor(t, 5*time.Second, func() bool { return w.Current().Latency == "9s" })
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, "9s", w.Current().Latency)
	for len(reloaded) > 0 {
		assert.Equal(t, "9s", (<-reloaded).Latency, "an intermediate write was applied")
	}
}
