// ABOUTME: Source abstraction over polled and streamed agent runs.
// ABOUTME: Holds the shared collaborators (thread resolver, run ledger) and mode selection.

package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/conversation"
	"github.com/2389/agent-relay/internal/events"
	"github.com/2389/agent-relay/internal/store"
)

// Turn is one user message sent to an agent.
type Turn struct {
	// ThreadID may be empty or a new-thread sentinel.
	ThreadID string
	AgentID  string
	Message  string
}

// Source produces the events of one turn.
type Source interface {
	Events(ctx context.Context, turn Turn) iter.Seq2[events.Event, error]
}

// ThreadResolver resolves or creates the thread of a turn.
type ThreadResolver interface {
	Resolve(ctx context.Context, threadID, agentID string) (conversation.Resolution, error)
}

// RunLedger records finished runs.
type RunLedger interface {
	RecordRun(ctx context.Context, run *store.Run) error
}

// Mode selects how runs are driven.
type Mode string

const (
	ModePoll   Mode = "poll"
	ModeStream Mode = "stream"
)

// ParseMode accepts "poll" and "stream"; empty means poll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePoll:
		return ModePoll, nil
	case ModeStream:
		return ModeStream, nil
	default:
		return "", fmt.Errorf("unknown agent mode %q (want poll or stream)", s)
	}
}

// Sources picks a Source per request.
type Sources struct {
	Poll    Source
	Push    Source
	Default Mode
}

// For returns the source for a request. A non-nil stream overrides the
// default mode.
func (s Sources) For(stream *bool) (Source, Mode) {
	mode := s.Default
	if stream != nil {
		mode = ModePoll
		if *stream {
			mode = ModeStream
		}
	}
	if mode == ModeStream && s.Push != nil {
		return s.Push, ModeStream
	}
	return s.Poll, ModePoll
}

// resolveThread resolves the turn's thread and yields create_thread for new
// threads. It returns false when the sequence must end.
func resolveThread(ctx context.Context, threads ThreadResolver, turn Turn, yield func(events.Event, error) bool) (string, bool) {
	res, err := threads.Resolve(ctx, turn.ThreadID, turn.AgentID)
	if err != nil {
		yield(nil, err)
		return "", false
	}
	if res.Created && !yield(events.NewThreadCreated(res.ThreadID), nil) {
		return "", false
	}
	return res.ThreadID, true
}

// recordRun writes a finished run to the ledger with its own timeout so a
// client disconnect does not lose it.
func recordRun(ledger RunLedger, logger *slog.Logger, run *agentsvc.Run, agentID string) {
	if ledger == nil || run == nil || run.ID == "" {
		return
	}

	entry := &store.Run{
		ID:        run.ID,
		ThreadID:  run.ThreadID,
		AgentID:   agentID,
		Status:    string(run.Status),
		CreatedAt: time.Now(),
	}
	if run.LastError != nil {
		entry.ErrorCode = run.LastError.Code
	}
	if run.Usage != nil {
		entry.PromptTokens = run.Usage.PromptTokens
		entry.CompletionTokens = run.Usage.CompletionTokens
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ledger.RecordRun(ctx, entry); err != nil {
		logger.Error("failed to record run", "run_id", run.ID, "thread_id", run.ThreadID, "error", err)
	}
}

// runErrorEvent maps a non-successful terminal run to its error event.
func runErrorEvent(run *agentsvc.Run) events.Error {
	if run.LastError != nil {
		return events.NewRunError(run.LastError.Code, run.LastError.Message)
	}
	return events.NewRunError(string(run.Status), fmt.Sprintf("run ended with status %s", run.Status))
}
