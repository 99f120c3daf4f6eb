// Package cmd implements the watchd command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/pkg/paths"
	"github.com/grovetools/watchd/pkg/profiling"
	"github.com/grovetools/watchd/util/pathutil"
	"github.com/grovetools/watchd/version"
)

// NewRootCmd returns the watchd command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"watchd",
		"Watch directories and hand new files to converter commands",
	)
	root.Long = `watchd watches directory trees for files with configured extensions,
keeps an index of what it has seen and runs the converter configured for each
new file. Its state survives restarts.

Examples:
  # Watch a directory in the background
  watchd start --detach ~/Music

  # Ask the daemon which files it has seen since it started
  watchd list

  # Watch in the foreground with a live view
  watchd run ~/Music
`
	root.PersistentFlags().String("socket", "", "Control socket path")
	cli.SetVersionTemplate(root, version.GetInfo())
	profiling.NewCobraProfiler().AddFlags(root)

	root.AddCommand(
		newStartCmd(),
		newRunCmd(),
		newListCmd(),
		newQuitCmd(),
		newStatusCmd(),
		newStopCmd(),
		newLogsCmd(),
		newPathsCmd(),
		newConfigCmd(),
		newSchemaCmd(),
		cli.NewVersionCommand("watchd"),
	)
	return root
}

// socketPath resolves --socket, then the settings value, then the default.
func socketPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	path, _ := cmd.Flags().GetString("socket")
	if path == "" && cfg != nil {
		path = cfg.Socket
	}
	if path == "" {
		path = paths.SocketPath()
	}
	return pathutil.Expand(path)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
