// Package cli holds the cobra plumbing shared by the watchd commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/logging"
)

// CommandOptions holds the persistent flags of every watchd command.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a root command carrying the standard flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to watchd settings file")

	SetStyledHelp(cmd)
	return cmd
}

// GetOptions extracts the standard flags from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig resolves the settings file named by --config (or the default
// search) and configures logging from it. It returns the settings and the
// path they were read from, "" when defaults are used.
func LoadConfig(cmd *cobra.Command, daemon bool) (*config.Config, string, error) {
	opts := GetOptions(cmd)

	if opts.Verbose && os.Getenv("WATCHD_LOG_LEVEL") == "" {
		_ = os.Setenv("WATCHD_LOG_LEVEL", "debug")
	}

	cfg, path, err := config.LoadDefault(opts.ConfigFile)
	if err != nil {
		return nil, path, err
	}
	if err := logging.ConfigureFromSettings(cfg, daemon); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
