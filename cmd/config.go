package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/watchd/cli"
	"github.com/grovetools/watchd/config"
	"github.com/grovetools/watchd/errors"
	"github.com/grovetools/watchd/logging"
	"github.com/grovetools/watchd/schema"
)

func newConfigCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings",
		Long: `Print the settings watchd would run with, after defaults are applied.
The settings file is searched in this order: --config, $WATCHD_CONFIG, then
watchd.{yml,yaml,toml,json} in the config directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd, false)
			if err != nil {
				return err
			}
			f := config.Format(format)
			switch f {
			case config.FormatYAML, config.FormatTOML, config.FormatJSON:
			default:
				return errors.New(errors.ErrCodeInvalidInput, "format must be one of yaml, toml, json").
					WithDetail("format", format)
			}
			data, err := cfg.Marshal(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if f != config.FormatJSON {
				source := cfgPath
				if source == "" {
					source = "built-in defaults"
				}
				fmt.Fprintf(out, "# Source: %s\n", source)
			}
			_, err = out.Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", string(config.FormatYAML), "Output format: yaml, toml, json")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:       "schema settings|backup",
		Short:     "Print the JSON Schema of the settings or backup file",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"settings", "backup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			switch args[0] {
			case "settings":
				if generate {
					var err error
					if data, err = config.GenerateSchema(map[string]interface{}{"logging": &logging.Config{}}); err != nil {
						return err
					}
					data = append(data, '\n')
				} else {
					data = schema.SettingsSchema()
				}
			case "backup":
				data = schema.BackupSchema()
			}
			_, err := cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "Reflect the settings schema from the running binary instead of the embedded copy")
	return cmd
}
