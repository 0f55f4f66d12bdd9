// ABOUTME: "agent-relay init" writes a starter config file
// ABOUTME: Never overwrites an existing file

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agent-relay/internal/config"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.WriteTemplate(configPath); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprint(out, "✓ ")
		fmt.Fprintf(out, "Wrote %s\n", configPath)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Set AGENT_SERVICE_ENDPOINT, AGENT_SERVICE_API_KEY and AGENT_ID (or edit the file),")
		fmt.Fprintln(out, "then run: agent-relay serve")
		return nil
	},
}
