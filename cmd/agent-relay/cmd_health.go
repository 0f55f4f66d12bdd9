// ABOUTME: "agent-relay health" checks a running relay's readiness endpoint
// ABOUTME: Exits non-zero when the relay or its agent service is unavailable

package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check relay readiness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := resolveBaseURL(relayURL) + "/health/ready"
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(body))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("relay not ready (%d): %s", resp.StatusCode, msg)
		}

		color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "✓ ")
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}
