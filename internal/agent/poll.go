// ABOUTME: Polled source: run to completion, then fetch the reply and its steps.
// ABOUTME: A synchronous generator over the agent service's blocking calls.

package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/events"
)

// DefaultMessageLimit is how many recent messages are searched for the reply.
const DefaultMessageLimit = 20

// PollClient is what PollSource needs from the agent service.
type PollClient interface {
	CreateMessage(ctx context.Context, threadID, role, content string) (*agentsvc.Message, error)
	CreateAndProcessRun(ctx context.Context, threadID, agentID string) (*agentsvc.Run, error)
	ListMessages(ctx context.Context, threadID string, opts agentsvc.ListMessagesOptions) (*agentsvc.MessageList, error)
	ListRunSteps(ctx context.Context, threadID, runID string, includeFileContent bool) ([]agentsvc.RunStep, error)
}

// PollSource drives runs by polling.
type PollSource struct {
	client       PollClient
	threads      ThreadResolver
	ledger       RunLedger
	messageLimit int
	logger       *slog.Logger
}

// PollOptions configures a PollSource.
type PollOptions struct {
	// Ledger may be nil.
	Ledger       RunLedger
	MessageLimit int
	Logger       *slog.Logger
}

// NewPollSource creates a PollSource.
func NewPollSource(client PollClient, threads ThreadResolver, opts PollOptions) *PollSource {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	return &PollSource{
		client:       client,
		threads:      threads,
		ledger:       opts.Ledger,
		messageLimit: limit,
		logger:       logger.With("component", "poll_source"),
	}
}

// Events implements Source.
func (p *PollSource) Events(ctx context.Context, turn Turn) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		threadID, ok := resolveThread(ctx, p.threads, turn, yield)
		if !ok {
			return
		}
		logger := p.logger.With("thread_id", threadID, "agent_id", turn.AgentID)

		if _, err := p.client.CreateMessage(ctx, threadID, agentsvc.RoleUser, turn.Message); err != nil {
			yield(nil, fmt.Errorf("posting message: %w", err))
			return
		}

		run, err := p.client.CreateAndProcessRun(ctx, threadID, turn.AgentID)
		if errors.Is(err, agentsvc.ErrRunTimeout) {
			logger.Warn("run timed out")
			recordRun(p.ledger, logger, run, turn.AgentID)
			yield(events.NewTimeoutError("agent run did not complete in time"), nil)
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("running agent: %w", err))
			return
		}
		logger = logger.With("run_id", run.ID)
		logger.Debug("run finished", "status", run.Status)
		recordRun(p.ledger, logger, run, turn.AgentID)

		if run.Status != agentsvc.RunStatusCompleted {
			yield(runErrorEvent(run), nil)
			return
		}

		list, err := p.client.ListMessages(ctx, threadID, agentsvc.ListMessagesOptions{Limit: p.messageLimit})
		if err != nil {
			yield(nil, fmt.Errorf("listing messages: %w", err))
			return
		}
		reply := list.LastMessageByRole(agentsvc.RoleAssistant)
		if reply == nil {
			logger.Warn("run completed without an assistant message")
			return
		}

		for _, text := range reply.TextContents() {
			if !yield(events.NewText(text), nil) {
				return
			}
		}

		steps, err := p.client.ListRunSteps(ctx, threadID, run.ID, true)
		if err != nil {
			yield(nil, fmt.Errorf("listing run steps: %w", err))
			return
		}
		for _, step := range steps {
			for _, ev := range stepEvents(step) {
				if !yield(ev, nil) {
					return
				}
			}
		}

		if citations, ok := citationsEvent(reply); ok {
			yield(citations, nil)
		}
	}
}
