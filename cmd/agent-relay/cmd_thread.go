// ABOUTME: "agent-relay delete-thread" removes a thread through a running relay
// ABOUTME: Prints the relay's confirmation message

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(deleteThreadCmd)
}

var deleteThreadCmd = &cobra.Command{
	Use:   "delete-thread THREAD_ID",
	Short: "Delete a conversation thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteThread,
}

func runDeleteThread(cmd *cobra.Command, args []string) error {
	payload, err := json.Marshal(map[string]string{"thread_id": args[0]})
	if err != nil {
		return err
	}

	url := resolveBaseURL(relayURL) + "/delete_thread"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, bearerToken())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, readDetail(resp.Body))
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "✓ ")
	fmt.Fprintln(cmd.OutOrStdout(), body.Message)
	return nil
}
