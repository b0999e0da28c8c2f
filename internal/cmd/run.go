package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rpakit/reportbot/internal/audit"
	"github.com/rpakit/reportbot/internal/config"
	"github.com/rpakit/reportbot/internal/export"
	"github.com/rpakit/reportbot/internal/pipeline"
	"github.com/rpakit/reportbot/internal/portal"
	"github.com/rpakit/reportbot/internal/prompt"
	"github.com/rpakit/reportbot/internal/run"
	"github.com/rpakit/reportbot/internal/runlog"
	"github.com/rpakit/reportbot/internal/s3"
	"github.com/rpakit/reportbot/internal/transform"
)

func newRunCommand() *cobra.Command {
	var configPath string
	var noPrompt bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Executes one report run: login, download, transform, export",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := config.NewConfigFromFile(
				configPath,
				config.WithEnvOverrides(
					viper.GetString("username"),
					viper.GetString("password"),
				),
			)
			if err != nil {
				return &pipeline.Failure{
					Kind:  pipeline.KindConfig,
					Stage: pipeline.StageConfig,
					Err:   err,
				}
			}
			if noPrompt {
				c.Bot.Report.Prompt = false
			}

			r := run.New()

			handle, err := runlog.Open(c.Global.Logger.Dir, r.ID, c.Global.Logger.Level)
			if err != nil {
				return &pipeline.Failure{
					Kind:  pipeline.KindConfig,
					Stage: pipeline.StageConfig,
					Err:   err,
				}
			}
			defer handle.Close()

			l := handle.Logger().Named("reportbot")
			l.Info("starting run",
				zap.String("bot", c.Bot.Name),
				zap.String("config", configPath),
				zap.String("log", handle.Path()),
			)

			store, err := audit.Open(c.Bot.Audit.Path, audit.WithLogger(l))
			if err != nil {
				return &pipeline.Failure{
					Kind:  pipeline.KindConfig,
					Stage: pipeline.StageConfig,
					Err:   err,
				}
			}
			defer store.Close()

			driver := portal.New(
				c.Bot.Portal,
				portal.WithLogger(l.Named("portal")),
				portal.WithDateFormat(c.Bot.Report.DateFormat),
			)

			transformer := transform.New(
				c.Bot.Transform,
				transform.WithLogger(l.Named("transform")),
			)

			exportOpts := []export.Option{
				export.WithLogger(l.Named("export")),
			}
			if s3cfg := c.Bot.Export.S3; s3cfg != nil {
				exportOpts = append(exportOpts, export.WithMirror(s3.New(
					s3.WithLogger(l.Named("s3")),
					s3.WithRegion(s3cfg.Region),
					s3.WithBucket(s3cfg.Bucket),
					s3.WithPrefix(s3cfg.Prefix),
					s3.WithEndpoint(s3cfg.Endpoint),
					s3.WithForcePathStyle(s3cfg.ForcePathStyle),
				)))
			}
			exporter := export.New(
				c.Bot.Export.Dir,
				c.Bot.Export.Format,
				c.Bot.Export.BaseName,
				exportOpts...,
			)

			p := pipeline.New(
				c.Bot.Name,
				c.Bot.Report,
				c.Bot.Credentials,
				pipeline.WithLogger(l),
				pipeline.WithPortal(driver),
				pipeline.WithTransformer(transformer),
				pipeline.WithExporter(exporter),
				pipeline.WithPrompter(prompt.New(c.Bot.Report.DateFormat)),
				pipeline.WithAuditor(store),
			)

			if _, err := p.Execute(ctx, r); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Use the default report date without asking")
	cmd.MarkFlagRequired("config")

	viper.SetEnvPrefix("REPORTBOT")
	viper.AutomaticEnv()

	return cmd
}
