package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpakit/reportbot/internal/pipeline"
)

func NewRootCommand() *cobra.Command {
	var cmd = &cobra.Command{
		Use:           "reportbot",
		Short:         "Logs into a web portal, downloads a report, and exports the cleaned result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newAuditCommand())

	return cmd
}

// Execute runs the root command and maps tagged failures to distinct exit
// codes so scripted callers can branch on the outcome.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if f, ok := pipeline.AsFailure(err); ok {
			os.Exit(f.ExitCode())
		}
		os.Exit(1)
	}
}
