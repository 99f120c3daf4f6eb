package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// BaseTime is a fixed modification time used to make mtime comparisons deterministic.
var BaseTime = time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)

// WriteFile creates path (and its parents) with content and the given mtime.
func WriteFile(t *testing.T, path, content string, mtime time.Time) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	SetModTime(t, path, mtime)
	return path
}

// SetModTime sets both atime and mtime of path.
func SetModTime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

// BumpModTime advances the mtime of path by d and returns the new value.
func BumpModTime(t *testing.T, path string, d time.Duration) time.Time {
	t.Helper()

	info, err := os.Stat(path)
	require.NoError(t, err)
	next := info.ModTime().Add(d)
	SetModTime(t, path, next)
	return next
}

// ShortTempDir returns a temporary directory with a short path, suitable for
// unix sockets whose path length is limited. It is removed when the test ends.
func ShortTempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "wd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// ResolvedTempDir returns t.TempDir with symlinks resolved, so paths compare
// equal to the normalized roots the daemon reports.
func ResolvedTempDir(t *testing.T) string {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, timeout, 20*time.Millisecond, msgAndArgs...)
}
