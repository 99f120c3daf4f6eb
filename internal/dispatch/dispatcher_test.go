package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/logging"
)

// writeScript creates an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conv.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func touch(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		paths = append(paths, p)
	}
	return paths
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// recorder appends one line per invocation holding every argument after the
// log path, separated by '|'.
const recorder = `log="$1"; shift
line=""
for f in "$@"; do line="$line$f|"; done
printf '%s\n' "$line" >> "$log"
`

func TestBatchPassesAllFilesToOneChild(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "calls.log")
	script := writeScript(t, recorder)
	files := touch(t, dir, "a.flac", "with space.flac", "com,ma.flac")

	res := New(Options{}).Execute(context.Background(), Job{
		Command: script,
		Args:    []string{log},
		Files:   files,
		Mode:    ModeBatch,
		Keep:    true,
	})

	assert.Empty(t, res.Errors)
	assert.Equal(t, files, res.Succeeded)
	assert.Equal(t, []string{strings.Join(files, "|") + "|"}, readLines(t, log))
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestFanOutRunsOneChildPerFile(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "calls.log")
	script := writeScript(t, recorder)
	files := touch(t, dir, "a.flac", "b.flac", "c.flac")

	res := New(Options{MaxParallel: 2}).Execute(context.Background(), Job{
		Command: script,
		Args:    []string{log},
		Files:   files,
		Mode:    ModeFanOut,
		Keep:    true,
	})

	assert.Empty(t, res.Errors)
	assert.ElementsMatch(t, files, res.Succeeded)
	lines := readLines(t, log)
	assert.Len(t, lines, 3)
	for _, f := range files {
		assert.Contains(t, lines, f+"|")
	}
}

func TestFanOutHonoursParallelLimit(t *testing.T) {
	dir := t.TempDir()
	running := filepath.Join(dir, "running")
	require.NoError(t, os.Mkdir(running, 0755))
	peaks := filepath.Join(dir, "peaks.log")

	script := writeScript(t, `running="$1"; peaks="$2"; f="$3"
marker="$running/$(basename "$f")"
: > "$marker"
sleep 0.2
ls "$running" | wc -l >> "$peaks"
rm -f "$marker"
`)
	var names []string
	for i := 0; i < 8; i++ {
		names = append(names, fmt.Sprintf("f%d.flac", i))
	}
	files := touch(t, dir, names...)

	res := New(Options{MaxParallel: 2}).Execute(context.Background(), Job{
		Command: script,
		Args:    []string{running, peaks},
		Files:   files,
		Mode:    ModeFanOut,
		Keep:    true,
	})
	require.Empty(t, res.Errors)

	for _, line := range readLines(t, peaks) {
		n, err := strconv.Atoi(strings.TrimSpace(line))
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 2, "more children running than MaxParallel")
	}
}

func TestFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, `case "$1" in *bad*) exit 3;; esac
exit 0
`)
	files := touch(t, dir, "bad.flac", "good1.flac", "good2.flac")

	res := New(Options{MaxParallel: 3}).Execute(context.Background(), Job{
		Command: script,
		Files:   files,
		Mode:    ModeFanOut,
		Keep:    false,
	})

	assert.Equal(t, []string{files[0]}, res.Failed)
	assert.Equal(t, files[1:], res.Succeeded)
	assert.Equal(t, files[1:], res.Removed)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], errors.ErrCodeDispatchFailed))

	assert.FileExists(t, files[0], "failed input must be kept")
	assert.NoFileExists(t, files[1])
	assert.NoFileExists(t, files[2])
}

func TestBatchFailureKeepsInputs(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, "exit 1\n")
	files := touch(t, dir, "a.txt", "b.txt")

	res := New(Options{}).Execute(context.Background(), Job{
		Command: script,
		Files:   files,
		Mode:    ModeBatch,
		Keep:    false,
	})

	assert.Equal(t, files, res.Failed)
	assert.Empty(t, res.Succeeded)
	assert.Empty(t, res.Removed)
	for _, f := range files {
		assert.FileExists(t, f)
	}
}

func TestRemoveFailureIsNotADispatchFailure(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, "exit 0\n")
	files := touch(t, dir, "a.txt")

	res := New(Options{
		Remove: func(string) error { return os.ErrPermission },
	}).Execute(context.Background(), Job{
		Command: script,
		Files:   files,
		Keep:    false,
	})

	assert.Equal(t, files, res.Succeeded)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Errors)
}

func TestTimeout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, "sleep 5\n")
	files := touch(t, dir, "slow.flac")

	start := time.Now()
	res := New(Options{}).Execute(context.Background(), Job{
		Command: script,
		Files:   files,
		Timeout: 100 * time.Millisecond,
		Keep:    true,
	})

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, files, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], errors.ErrCodeCommandTimeout))
}

func TestMissingCommand(t *testing.T) {
	res := New(Options{}).Execute(context.Background(), Job{
		Command: "watchd-no-such-converter",
		Files:   []string{"/tmp/x.flac"},
		Mode:    ModeFanOut,
	})

	assert.Equal(t, []string{"/tmp/x.flac"}, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.True(t, errors.Is(res.Errors[0], errors.ErrCodeCommandNotFound))
}

func TestChildOutputGoesToContextWriter(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, `echo "converted $1"`+"\n")
	files := touch(t, dir, "a.flac")

	var out bytes.Buffer
	ctx := logging.WithWriter(context.Background(), &out)
	res := New(Options{}).Execute(ctx, Job{Command: script, Files: files, Keep: true})

	require.Empty(t, res.Errors)
	assert.Contains(t, out.String(), "converted "+files[0])
}

func TestEmptyJob(t *testing.T) {
	res := New(Options{}).Execute(context.Background(), Job{Command: "anything"})
	assert.Equal(t, Result{}, res)
}
