package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Show the daemon log file.

Examples:
  # Last 100 lines
  watchd logs --tail 100

  # Follow new lines as they are written
  watchd logs -f
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd, false)
			if err != nil {
				return err
			}
			path := logging.FilePath(cfg)
			if _, err := os.Stat(path); err != nil && !follow {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "no daemon log").
					WithDetail("path", path)
			}

			out := cmd.OutOrStdout()
			if err := printLastLines(out, path, lines); err != nil && !os.IsNotExist(err) {
				return err
			}
			if !follow {
				return nil
			}
			return followLog(cmd, out, path)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "tail", "n", 50, "Number of lines to show (0 shows the whole file)")
	return cmd
}

// printLastLines writes the last n lines of path, or all of them when n is 0.
func printLastLines(w io.Writer, path string, n int) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	t, err := tail.TailFile(path, tail.Config{
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	var ring []string
	for line := range t.Lines {
		if line.Err != nil {
			return line.Err
		}
		ring = append(ring, line.Text)
		if n > 0 && len(ring) > n {
			ring = ring[1:]
		}
	}
	for _, line := range ring {
		fmt.Fprintln(w, line)
	}
	return nil
}

// followLog prints lines appended to path until the command is interrupted.
// Rotation by the file sink is followed by reopening.
func followLog(cmd *cobra.Command, w io.Writer, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			fmt.Fprintln(w, line.Text)
		case <-ctx.Done():
			return t.Stop()
		}
	}
}
