package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/daemon"
	"github.com/grovetools/watchd/pkg/protocol"
)

// newClient connects to the daemon named by --socket or the settings.
func newClient(cmd *cobra.Command) (daemon.Client, error) {
	cfg, _, err := cli.LoadConfig(cmd, false)
	if err != nil {
		return nil, err
	}
	socket, err := socketPath(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return daemon.New(socket), nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files the daemon detected since it started",
		Long: `List the files the daemon detected since it started, one per line.
Files that were deleted since are not listed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			files, err := c.ListFiles(commandContext(cmd))
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), nonNil(files))
			}
			printFiles(cmd.OutOrStdout(), files, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}
}

func newQuitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Ask the daemon to save its state and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ack, err := c.Quit(commandContext(cmd))
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"ack": ack})
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(ack)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(commandContext(cmd))
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printStatus(logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()), st)
			return nil
		},
	}
}

func printStatus(p *logging.PrettyLogger, st *protocol.Status) {
	p.Success(fmt.Sprintf("watchd %s is %s", st.Version, st.State))
	p.Field("pid", st.PID)
	p.Field("notifier", st.Notifier)
	p.Field("cursor", st.Cursor)
	p.Field("uptime", time.Since(st.StartedAt).Round(time.Second))
	if !st.LastScan.IsZero() {
		p.Field("last scan", st.LastScan.Local().Format(time.DateTime))
	}
	p.Field("scans", st.Scans)
	p.Field("new files", st.NewFiles)
	p.Field("dispatched", st.Dispatched)
	if st.Failed > 0 {
		p.WarnPretty(fmt.Sprintf("%d files failed to convert", st.Failed))
	}
	p.Divider()
	for _, r := range st.Roots {
		p.Path(fmt.Sprintf("%6d", r.Files), r.Path)
	}
}

// printFiles writes one path per line, or a titled list for a terminal.
func printFiles(w io.Writer, files []string, pretty bool) {
	if pretty {
		logging.NewPrettyLogger().WithWriter(w).List("New files", files)
		return
	}
	for _, f := range files {
		fmt.Fprintln(w, f)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
