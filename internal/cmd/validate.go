package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpakit/reportbot/internal/config"
	"github.com/rpakit/reportbot/internal/pipeline"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspects bot configuration",
	}
	cmd.AddCommand(newConfigValidateCommand())
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Checks a config file for missing or malformed fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.NewConfigFromFile(configPath)
			if err != nil {
				return &pipeline.Failure{
					Kind:  pipeline.KindConfig,
					Stage: pipeline.StageConfig,
					Err:   err,
				}
			}

			fmt.Printf("config ok: bot %q, export to %s (%s)\n",
				c.Bot.Name,
				c.Bot.Export.Dir,
				c.Bot.Export.Format,
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")

	return cmd
}
