package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/watchd/errors"
)

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four five", 9)
	assert.Equal(t, "one two\nthree\nfour five", got)

	assert.Equal(t, "keep\nbreaks", wrapText("keep\nbreaks", 40))
}

func TestParseDescription(t *testing.T) {
	desc, examples := parseDescription("Does things.\n\nExamples:\n  watchd list\n")
	assert.Equal(t, "Does things.", desc)
	assert.Equal(t, "watchd list", examples)

	desc, examples = parseDescription("No examples here.")
	assert.Equal(t, "No examples here.", desc)
	assert.Empty(t, examples)
}

func TestStandardCommandFlags(t *testing.T) {
	cmd := NewStandardCommand("watchd", "test")
	cmd.Run = func(*cobra.Command, []string) {}
	cmd.SetArgs([]string{"-v", "--json", "--config", "/tmp/watchd.yml"})
	require.NoError(t, cmd.Execute())

	opts := GetOptions(cmd)
	assert.True(t, opts.Verbose)
	assert.True(t, opts.JSONOutput)
	assert.Equal(t, "/tmp/watchd.yml", opts.ConfigFile)
}

func TestStyledHelp(t *testing.T) {
	root := NewStandardCommand("watchd", "Watch directories")
	root.Long = "Watch directories.\n\nExamples:\n  # list files\n  watchd list\n"
	root.AddCommand(&cobra.Command{Use: "list", Short: "List files", Run: func(*cobra.Command, []string) {}})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--help"})
	require.NoError(t, root.Execute())

	help := out.String()
	assert.Contains(t, help, "WATCHD")
	assert.Contains(t, help, "COMMANDS")
	assert.Contains(t, help, "List files")
	assert.Contains(t, help, "EXAMPLES")
	assert.Contains(t, help, "--config")
}

func TestErrorHandlerHints(t *testing.T) {
	cases := []struct {
		err  error
		hint string
	}{
		{errors.DaemonNotRunning("/run/watchd.sock"), "watchd start"},
		{errors.DaemonAlreadyRunning(42), "watchd quit"},
		{errors.BackupCorrupt("/state/backup.json", fmt.Errorf("bad json")), "/state/backup.json"},
		{fmt.Errorf("wrapped: %w", errors.SocketBindFailed("/run/s.sock", fmt.Errorf("denied"))), "/run/s.sock"},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		returned := NewErrorHandler(&out, false).Handle(tc.err)
		assert.Equal(t, tc.err, returned)
		assert.Contains(t, out.String(), tc.hint, "error %v", tc.err)
	}
}

func TestErrorHandlerVerbose(t *testing.T) {
	var out bytes.Buffer
	_ = NewErrorHandler(&out, true).Handle(errors.DaemonNotRunning("/run/watchd.sock"))
	assert.True(t, strings.Contains(out.String(), `"DAEMON_NOT_RUNNING"`), out.String())
	assert.Nil(t, NewErrorHandler(&out, true).Handle(nil))
}
