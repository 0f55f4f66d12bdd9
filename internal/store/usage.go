// ABOUTME: Token usage and run outcome aggregates over the run ledger
// ABOUTME: Backs the "agent-relay usage" report

package store

import (
	"context"
	"fmt"
	"time"
)

// UsageFilter narrows a usage query. Nil fields are not applied.
type UsageFilter struct {
	AgentID *string
	Since   *time.Time
	Until   *time.Time
}

// AgentUsage aggregates the ledger runs of one agent.
type AgentUsage struct {
	AgentID          string
	Runs             int
	FailedRuns       int
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens is prompt plus completion tokens.
func (u AgentUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// UsageReporter is implemented by stores that can aggregate the run ledger.
type UsageReporter interface {
	UsageByAgent(ctx context.Context, filter UsageFilter) ([]AgentUsage, error)
}

// UsageByAgent returns one row per agent, ordered by agent ID. A run counts
// as failed when its status is anything but "completed".
func (s *SQLiteStore) UsageByAgent(ctx context.Context, filter UsageFilter) ([]AgentUsage, error) {
	query := `
		SELECT
			agent_id,
			COUNT(*) AS runs,
			COALESCE(SUM(CASE WHEN status != 'completed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(prompt_tokens), 0) AS prompt,
			COALESCE(SUM(completion_tokens), 0) AS completion
		FROM runs
		WHERE 1=1
	`
	args := []any{}

	if filter.AgentID != nil {
		query += " AND agent_id = ?"
		args = append(args, *filter.AgentID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}
	query += " GROUP BY agent_id ORDER BY agent_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AgentUsage
	for rows.Next() {
		var u AgentUsage
		if err := rows.Scan(&u.AgentID, &u.Runs, &u.FailedRuns, &u.PromptTokens, &u.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return out, nil
}

var _ UsageReporter = (*SQLiteStore)(nil)
