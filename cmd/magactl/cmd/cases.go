package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
	listLimit    int
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Inspect and control auto-pilot cases",
}

var caseStatusCmd = &cobra.Command{
	Use:   "status [case_id]",
	Short: "Print the status summary of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiRequest(http.MethodGet, "/api/v1/cases/"+url.PathEscape(args[0]), nil, true)
		if err != nil {
			return err
		}
		var resp struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Status)
		return nil
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list [user_id]",
	Short: "List the newest cases of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/v1/users/%s/cases?limit=%d", url.PathEscape(args[0]), listLimit)
		body, err := apiRequest(http.MethodGet, path, nil, true)
		if err != nil {
			return err
		}
		var resp struct {
			Cases []struct {
				ID        string `json:"id"`
				Stage     string `json:"stage"`
				Cancelled bool   `json:"cancelled"`
				UpdatedAt string `json:"updated_at"`
			} `json:"cases"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(resp.Cases) == 0 {
			fmt.Fprintln(out, "No cases")
			return nil
		}
		fmt.Fprintf(out, "%-38s %-12s %s\n", "ID", "STAGE", "UPDATED")
		for _, c := range resp.Cases {
			stage := c.Stage
			if c.Cancelled {
				stage = "cancelled"
			}
			fmt.Fprintf(out, "%-38s %-12s %s\n", c.ID, stage, c.UpdatedAt)
		}
		return nil
	},
}

var caseExportCmd = &cobra.Command{
	Use:   "export [case_id]",
	Short: "Download a case report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/v1/cases/%s/export?format=%s", url.PathEscape(args[0]), url.QueryEscape(exportFormat))
		data, err := apiRequest(http.MethodGet, path, nil, true)
		if err != nil {
			return err
		}
		if exportOut == "" || exportOut == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✅ Wrote %d bytes to %s\n", len(data), exportOut)
		return nil
	},
}

func controlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [case_id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/cases/%s/%s", url.PathEscape(args[0]), action)
			if _, err := apiRequest(http.MethodPost, path, nil, true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s queued for case %s\n", action, args[0])
			return nil
		},
	}
}

func init() {
	caseExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "report format: json or xlsx")
	caseExportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output file (default stdout)")
	caseListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of cases")

	caseCmd.AddCommand(caseStatusCmd, caseListCmd, caseExportCmd,
		controlCmd("retry", "Retry the current or failed stage of a case"),
		controlCmd("cancel", "Cancel a case"))
	rootCmd.AddCommand(caseCmd)
}
