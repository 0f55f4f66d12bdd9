// ABOUTME: Shared fixtures for source tests: fake agent service, client, and collectors.
// ABOUTME: Wires the real client and thread service against the in-memory fake.

package agent

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/agentsvc/agentsvctest"
	"github.com/2389/agent-relay/internal/conversation"
	"github.com/2389/agent-relay/internal/events"
	"github.com/2389/agent-relay/internal/store"
)

type fixture struct {
	fake    *agentsvctest.Server
	client  *agentsvc.Client
	threads *conversation.Service
	ledger  *store.MockStore
}

func newFixture(t *testing.T, runTimeout time.Duration, opts ...agentsvctest.Option) *fixture {
	t.Helper()
	fake := agentsvctest.New(opts...)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	if runTimeout == 0 {
		runTimeout = 2 * time.Second
	}
	client, err := agentsvc.New(agentsvc.Config{
		Endpoint:     srv.URL,
		PollInterval: 5 * time.Millisecond,
		RunTimeout:   runTimeout,
	})
	require.NoError(t, err)

	ledger := store.NewMockStore()
	return &fixture{
		fake:    fake,
		client:  client,
		threads: conversation.New(client, ledger, nil),
		ledger:  ledger,
	}
}

func (f *fixture) pollSource() *PollSource {
	return NewPollSource(f.client, f.threads, PollOptions{Ledger: f.ledger})
}

func (f *fixture) pushSource() *PushSource {
	return NewPushSource(f.client, f.threads, PushOptions{Ledger: f.ledger, IdleTimeout: 2 * time.Second})
}

// collect drains a source, returning the events and the terminal error.
func collect(t *testing.T, src Source, turn Turn) ([]events.Event, error) {
	t.Helper()
	var got []events.Event
	for ev, err := range src.Events(context.Background(), turn) {
		if err != nil {
			return got, err
		}
		got = append(got, ev)
	}
	return got, nil
}

func eventTypes(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.EventType()
	}
	return out
}

func replyWith(r agentsvctest.Reply) agentsvctest.Option {
	return agentsvctest.WithReply(func(string) agentsvctest.Reply { return r })
}

// stubResolver always resumes or creates a fixed thread.
type stubResolver struct {
	created bool
	err     error
}

func (s stubResolver) Resolve(ctx context.Context, threadID, agentID string) (conversation.Resolution, error) {
	if s.err != nil {
		return conversation.Resolution{}, s.err
	}
	if s.created {
		return conversation.Resolution{ThreadID: "thread_stub", Created: true}, nil
	}
	return conversation.Resolution{ThreadID: threadID}, nil
}

func webSearchStep(requestURL string) agentsvc.RunStep {
	return agentsvc.RunStep{
		Type:   agentsvc.StepTypeToolCalls,
		Status: agentsvc.RunStatusCompleted,
		StepDetails: agentsvc.StepDetails{
			Type: agentsvc.StepTypeToolCalls,
			ToolCalls: []agentsvc.ToolCall{{
				ID:            "call_web",
				Type:          agentsvc.ToolBingGrounding,
				BingGrounding: map[string]string{"requesturl": requestURL},
			}},
		},
	}
}

func fileSearchStep(results ...agentsvc.FileSearchResult) agentsvc.RunStep {
	return agentsvc.RunStep{
		Type:   agentsvc.StepTypeToolCalls,
		Status: agentsvc.RunStatusCompleted,
		StepDetails: agentsvc.StepDetails{
			Type: agentsvc.StepTypeToolCalls,
			ToolCalls: []agentsvc.ToolCall{{
				ID:         "call_file",
				Type:       agentsvc.ToolFileSearch,
				FileSearch: &agentsvc.FileSearchCall{Results: results},
			}},
		},
	}
}

func failedStep(code, message string) agentsvc.RunStep {
	return agentsvc.RunStep{
		ID:          "step_failed",
		Type:        agentsvc.StepTypeToolCalls,
		Status:      agentsvc.RunStatusFailed,
		LastError:   &agentsvc.LastError{Code: code, Message: message},
		StepDetails: agentsvc.StepDetails{Type: agentsvc.StepTypeToolCalls},
	}
}
