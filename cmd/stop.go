package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/internal/daemon/pidfile"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/paths"
	"github.com/grovetools/watchd/pkg/process"
)

func newStopCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon recorded in the pid file",
		Long: `Send SIGTERM to the daemon recorded in the pid file. The daemon finishes
running converters and saves its backup before it exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				return errors.New(errors.ErrCodeDaemonNotRunning, "watchd daemon is not running").
					WithDetail("pidfile", pidPath)
			}

			if err := process.Terminate(pid); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if wait <= 0 {
				p.InfoPretty(fmt.Sprintf("Sent SIGTERM to process %d", pid))
				return nil
			}

			deadline := time.Now().Add(wait)
			for process.IsProcessAlive(pid) {
				if time.Now().After(deadline) {
					return errors.New(errors.ErrCodeInternal, "daemon is still running").
						WithDetail("pid", pid).
						WithDetail("waited", wait.String())
				}
				time.Sleep(100 * time.Millisecond)
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"stopped": pid})
			}
			p.Success(fmt.Sprintf("Stopped process %d", pid))
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the daemon to exit (0 returns immediately)")
	return cmd
}
