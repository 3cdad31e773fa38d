package cmd

import (
	"fmt"
	"sort"
	"strings"

	"magabot/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with assistant.yaml files",
}

var configCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Load and validate an assistant.yaml",
	Long:  `Load an assistant.yaml the way the server does, merged over the built-in defaults, and print the effective settings.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "assistant.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		a, err := config.LoadAssistant(path)
		if err != nil {
			return err
		}
		printAssistant(cmd, path, a)
		return nil
	},
}

func printAssistant(cmd *cobra.Command, path string, a *config.AssistantConfig) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ %s is valid\n\n", path)
	fmt.Fprintf(out, "Voice markers:   %s\n", strings.Join(a.Mode.VoiceMarkers, ", "))
	fmt.Fprintf(out, "Job intents:     %d phrases\n", len(a.Router.JobIntents))
	fmt.Fprintf(out, "Guard:           %s backend, window %s\n", a.Guard.Backend, a.Guard.Window)
	fmt.Fprintf(out, "Breaker:         %d failures, recovery %s\n", a.Breaker.Threshold, a.Breaker.Recovery)
	fmt.Fprintf(out, "Resume cron:     %s\n", a.AutoPilot.ResumeCron)
	fmt.Fprintf(out, "Auto-advance:    %t\n", a.AutoPilot.ShouldAutoAdvance())
	fmt.Fprintf(out, "Target role:     %s\n", a.AutoPilot.Criteria.TargetRole)
	fmt.Fprintf(out, "Min match score: %.2f\n", a.AutoPilot.Criteria.MinMatchScore)
	fmt.Fprintf(out, "Negotiation:     %d strategies, %d rounds max, %d parallel\n", a.Negotiation.Count, a.Negotiation.MaxRounds, a.Negotiation.MaxParallel)

	if len(a.Capabilities) == 0 {
		return
	}
	kinds := make([]string, 0, len(a.Capabilities))
	for k := range a.Capabilities {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintln(out, "\nCapabilities:")
	for _, k := range kinds {
		c := a.Capabilities[k]
		fmt.Fprintf(out, "  %-16s %-5s %s\n", k, c.Class, c.Timeout)
	}
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}
