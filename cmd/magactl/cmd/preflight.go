package cmd

import (
	"errors"
	"fmt"
	"log"

	"magabot/internal/config"
	"magabot/internal/preflight"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var preflightCmd = &cobra.Command{
	Use:   "preflight [assistant.yaml]",
	Short: "Run the server's startup checks against the current environment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
		cfg := config.Load()
		path := cfg.AssistantFile
		if len(args) == 1 {
			path = args[0]
		}
		assistant, err := config.LoadAssistant(path)
		if err != nil {
			return err
		}

		log.SetOutput(cmd.OutOrStdout())
		log.SetFlags(0)
		if preflight.HasFailures(preflight.NewChecker(cfg, assistant).RunAll()) {
			return errors.New("pre-flight checks failed")
		}
		return nil
	},
}

func init() {
	preflightCmd.Flags().StringVar(&envFile, "env-file", "", "load environment variables from this file first")
	rootCmd.AddCommand(preflightCmd)
}
