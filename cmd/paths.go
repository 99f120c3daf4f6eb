package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/pkg/paths"
	"github.com/grovetools/watchd/util/pathutil"
)

// PathsOutput lists the locations watchd reads and writes.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	SettingsFile string `json:"settings_file,omitempty"`
	StateDir     string `json:"state_dir"`
	Socket       string `json:"socket"`
	PidFile      string `json:"pid_file"`
	BackupFile   string `json:"backup_file"`
	LogFile      string `json:"log_file"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the locations watchd uses",
		Long: `Print the locations watchd uses as JSON. Values from the settings file
and --socket take precedence over the defaults, which follow the XDG base
directory layout and WATCHD_HOME.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd, false)
			if err != nil {
				return err
			}
			out, err := resolvePaths(cmd, cfg, cfgPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func resolvePaths(cmd *cobra.Command, cfg *config.Config, cfgPath string) (PathsOutput, error) {
	socket, err := socketPath(cmd, cfg)
	if err != nil {
		return PathsOutput{}, err
	}
	backup := paths.BackupPath()
	if cfg.BackupFile != "" {
		if backup, err = pathutil.Expand(cfg.BackupFile); err != nil {
			return PathsOutput{}, err
		}
	}
	return PathsOutput{
		ConfigDir:    paths.ConfigDir(),
		SettingsFile: cfgPath,
		StateDir:     paths.StateDir(),
		Socket:       socket,
		PidFile:      paths.PidFilePath(),
		BackupFile:   backup,
		LogFile:      logging.FilePath(cfg),
	}, nil
}
