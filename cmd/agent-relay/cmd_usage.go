// ABOUTME: "agent-relay usage" reports runs and token usage per agent from the run ledger
// ABOUTME: Reads the SQLite database named by database.path directly

package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/agent-relay/internal/config"
	"github.com/2389/agent-relay/internal/store"
)

var (
	usageAgent string
	usageSince time.Duration
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().StringVar(&usageAgent, "agent", "", "only report this agent")
	usageCmd.Flags().DurationVar(&usageSince, "since", 0, "only count runs newer than this (e.g. 24h)")
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show run counts and token usage per agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Database.Path == "" || cfg.Database.Path == store.MemoryPath {
			return errors.New("database.path does not name a database file")
		}

		s, err := store.NewSQLiteStore(config.ExpandHome(cfg.Database.Path))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer s.Close()

		var filter store.UsageFilter
		if usageAgent != "" {
			filter.AgentID = &usageAgent
		}
		if usageSince > 0 {
			since := time.Now().Add(-usageSince)
			filter.Since = &since
		}

		rows, err := s.UsageByAgent(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return printUsage(cmd.OutOrStdout(), rows)
	},
}

func printUsage(w io.Writer, rows []store.AgentUsage) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tRUNS\tFAILED\tPROMPT\tCOMPLETION\tTOTAL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			r.AgentID, r.Runs, r.FailedRuns, r.PromptTokens, r.CompletionTokens, r.TotalTokens())
	}
	return tw.Flush()
}
