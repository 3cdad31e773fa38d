package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string
	token  string
)

var rootCmd = &cobra.Command{
	Use:   "magactl",
	Short: "magactl is the operator tool for a magabot deployment",
	Long: `magactl helps operators configure and inspect a running magabot server.

Common workflows:

  Produce the OPERATOR_PASSWORD_HASH value:
    magactl hash-password

  Check an assistant.yaml before deploying it:
    magactl config check ./assistant.yaml

  Preview the stalled-case resume schedule:
    magactl validate-cron "*/15 * * * *" --next 3

  Log in and inspect a case:
    magactl login --name alice
    magactl case status <case-id> --token <token>

Environment:
  MAGABOT_API_URL    API endpoint (default: http://localhost:3001)
  MAGABOT_TOKEN      Operator token returned by login`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", envOr("MAGABOT_API_URL", "http://localhost:3001"), "magabot server URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("MAGABOT_TOKEN"), "operator token")
}
