package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpakit/reportbot/internal/audit"
	"github.com/rpakit/reportbot/internal/config"
	"github.com/rpakit/reportbot/internal/pipeline"
)

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspects the per-run audit trail",
	}
	cmd.AddCommand(newAuditListCommand())
	return cmd
}

func newAuditListCommand() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.NewConfigFromFile(configPath)
			if err != nil {
				return &pipeline.Failure{
					Kind:  pipeline.KindConfig,
					Stage: pipeline.StageConfig,
					Err:   err,
				}
			}

			store, err := audit.Open(c.Bot.Audit.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tSTAGE\tROWS\tARTIFACT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					e.RunID, e.Status, e.Stage, e.RowsExported, e.ArtifactPath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.MarkFlagRequired("config")

	return cmd
}
