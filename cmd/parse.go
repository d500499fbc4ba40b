package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/climatedb/internal/collect"
)

func newParseCmd() *cobra.Command {
	var (
		logName string
		replace bool
	)
	cmd := &cobra.Command{
		Use:   "parse [source ids...|all]",
		Short: "Archive every URL recorded in a log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, runErr := a.Runner.Reparse(cmd.Context(), logName, args, replace)
			printSummary(cmd.OutOrStdout(), summary)
			pushMetrics(cmd.Context(), a)
			if runErr != nil {
				return fmt.Errorf("parse %s: %w", logName, runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logName, "log", collect.DefaultDestination, "log to read URLs from")
	cmd.Flags().BoolVar(&replace, "replace", true, "re-archive articles that already exist")
	return cmd
}
