package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	loginName     string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange the operator password for a token",
	Long:  `Log in to the operator API. The password is read from --password or, when omitted, from the first line of stdin. The printed token can be exported as MAGABOT_TOKEN.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := loginPassword
		if password == "" {
			line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password = strings.TrimRight(line, "\r\n")
		}

		body, err := apiRequest(http.MethodPost, "/api/v1/auth/login", map[string]string{
			"name":     loginName,
			"password": password,
		}, false)
		if err != nil {
			return err
		}

		var resp struct {
			Token     string `json:"token"`
			ExpiresAt string `json:"expires_at"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		fmt.Fprintf(cmd.ErrOrStderr(), "token expires at %s\n", resp.ExpiresAt)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "operator", "operator name recorded in the token")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "operator password")
	rootCmd.AddCommand(loginCmd)
}
