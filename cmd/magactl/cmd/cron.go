package cmd

import (
	"fmt"
	"time"

	"magabot/internal/jobs"

	"github.com/spf13/cobra"
)

var nextRuns int

var validateCronCmd = &cobra.Command{
	Use:   "validate-cron [expression]",
	Short: "Validate a resume cron expression and preview its next runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expr := args[0]
		if err := jobs.ValidateCron(expr); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✅ %q is valid\n", expr)

		t := time.Now().UTC()
		for i := 0; i < nextRuns; i++ {
			next, err := jobs.NextRun(expr, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s\n", next.Format(time.RFC3339))
			t = next
		}
		return nil
	},
}

func init() {
	validateCronCmd.Flags().IntVarP(&nextRuns, "next", "n", 3, "number of upcoming runs to print")
	rootCmd.AddCommand(validateCronCmd)
}
