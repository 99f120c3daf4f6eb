package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/internal/daemon"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/paths"
	client "github.com/grovetools/watchd/pkg/daemon"
)

// detachTimeout bounds the wait for a detached daemon to open its socket.
const detachTimeout = 10 * time.Second

func newStartCmd() *cobra.Command {
	var (
		backupFile string
		detach     bool
	)

	cmd := &cobra.Command{
		Use:   "start [dir...]",
		Short: "Start the watch daemon",
		Long: `Start the watch daemon. Directories given here are watched in addition to
the roots in the settings file and the roots recorded in the backup file.

The daemon serves list, status and quit requests on its control socket and
saves its index to the backup file when it stops.

Examples:
  watchd start ~/Music ~/Downloads
  watchd start --detach --socket /tmp/watchd.sock ~/Music
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd, true)
			if err != nil {
				return err
			}
			if detach {
				return startDetached(cmd, cfg)
			}

			socket, err := socketPath(cmd, cfg)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, daemon.Options{
				SocketPath:   socket,
				BackupPath:   backupFile,
				PidFile:      paths.PidFilePath(),
				SettingsFile: cfgPath,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx, absRoots(args))
		},
	}

	cmd.Flags().StringVar(&backupFile, "backup", "", "Backup file path")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run in the background")
	return cmd
}

func newRunCmd() *cobra.Command {
	var backupFile string

	cmd := &cobra.Command{
		Use:   "run [dir...]",
		Short: "Watch in the foreground with a live view",
		Long: `Watch in the foreground without a control socket. Press p to print the
files detected so far and q to quit. When stdout is not a terminal, run
behaves like start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd, true)
			if err != nil {
				return err
			}
			socket, err := socketPath(cmd, cfg)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, daemon.Options{
				SocketPath:   socket,
				BackupPath:   backupFile,
				PidFile:      paths.PidFilePath(),
				SettingsFile: cfgPath,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !isatty.IsTerminal(os.Stdout.Fd()) {
				return d.Run(ctx, absRoots(args))
			}

			// Logs go to the file sink only while the view owns the terminal.
			prev := logging.SetGlobalOutput(io.Discard)
			defer logging.SetGlobalOutput(prev)
			return d.RunInteractive(ctx, absRoots(args))
		},
	}

	cmd.Flags().StringVar(&backupFile, "backup", "", "Backup file path")
	return cmd
}

// startDetached re-executes watchd without --detach in a new session and
// waits for its control socket.
func startDetached(cmd *cobra.Command, cfg *config.Config) error {
	socket, err := socketPath(cmd, cfg)
	if err != nil {
		return err
	}
	if client.NewRemoteClient(socket).IsRunning() {
		return errors.New(errors.ErrCodeDaemonAlreadyRunning, "watchd daemon is already running").
			WithDetail("socket", socket)
	}

	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot locate watchd executable")
	}
	args := slices.DeleteFunc(slices.Clone(os.Args[1:]), func(a string) bool {
		return a == "--detach" || a == "-d" || a == "--detach=true"
	})

	logPath := logging.FilePath(cfg)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	child := exec.Command(exe, args...)
	child.Stdout = out
	child.Stderr = out
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to start daemon")
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	c := client.NewRemoteClient(socket)
	deadline := time.Now().Add(detachTimeout)
	for !c.IsRunning() {
		if time.Now().After(deadline) {
			return errors.New(errors.ErrCodeInternal, "daemon did not start; see "+logPath).
				WithDetail("pid", pid)
		}
		time.Sleep(100 * time.Millisecond)
	}

	p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	p.Success(fmt.Sprintf("watchd started (pid %d)", pid))
	p.Path("socket", socket)
	p.Path("log", logPath)
	return nil
}

// absRoots makes command-line roots absolute against the working directory.
func absRoots(args []string) []string {
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		if abs, err := filepath.Abs(arg); err == nil {
			arg = abs
		}
		roots = append(roots, arg)
	}
	return roots
}
