// ABOUTME: Tests for the streamed source: translation, ordering, termination, and timeouts.
// ABOUTME: Uses the fake service's generated streams plus stub clients for edge cases.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/agentsvc/agentsvctest"
	"github.com/2389/agent-relay/internal/events"
)

func TestPushSource_GeneratedStream(t *testing.T) {
	f := newFixture(t, 0, replyWith(agentsvctest.Reply{
		Texts: []string{"Hi there"},
		Citations: []agentsvc.Annotation{
			{Type: agentsvc.AnnotationURLCitation, URLCitation: &agentsvc.URLCitation{URL: "https://a.example", Title: "A"}},
		},
		Usage: &agentsvc.Usage{PromptTokens: 3, CompletionTokens: 2},
	}))

	got, err := collect(t, f.pushSource(), Turn{AgentID: "asst_1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, []string{
		events.TypeCreateThread,
		events.TypeRunStep,
		events.TypeMessageDelta,
		events.TypeThreadMessage,
		events.TypeCitations,
		events.TypeRunStep,
	}, eventTypes(got))

	started := got[1].(events.RunStep)
	assert.Equal(t, "in_progress", started.Status)
	assert.Equal(t, agentsvc.StepTypeMessageCreation, started.StepType)

	delta := got[2].(events.MessageDelta)
	assert.Equal(t, "Hi there", delta.Text)
	assert.NotEmpty(t, delta.MessageID)

	msg := got[3].(events.ThreadMessage)
	assert.Equal(t, delta.MessageID, msg.MessageID)
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, agentsvc.RoleAssistant, msg.Role)

	assert.Equal(t, "completed", got[5].(events.RunStep).Status)

	created := got[0].(events.ThreadCreated)
	runs, err := f.ledger.ListRunsByThread(context.Background(), created.ThreadID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].PromptTokens)
}

func TestPushSource_RunFailureIsTerminal(t *testing.T) {
	f := newFixture(t, 0, replyWith(agentsvctest.Reply{
		Fail: &agentsvc.LastError{Code: "server_error", Message: "Something went wrong."},
	}))

	got, err := collect(t, f.pushSource(), Turn{AgentID: "asst_1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeCreateThread, events.TypeError}, eventTypes(got))
	runErr := got[1].(events.Error)
	assert.Equal(t, events.ScopeRun, runErr.Scope)
	assert.Equal(t, "server_error", runErr.Code)
}

func TestPushSource_ToolStepsAndFailedStep(t *testing.T) {
	f := newFixture(t, 0, replyWith(agentsvctest.Reply{
		Texts: []string{"ok"},
		Steps: []agentsvc.RunStep{
			failedStep("tool_error", "boom"),
			webSearchStep(`https://api.bing.microsoft.com/v7.0/search?q="weather today"`),
		},
	}))
	thread, err := f.client.CreateThread(context.Background())
	require.NoError(t, err)

	got, err := collect(t, f.pushSource(), Turn{ThreadID: thread.ID, AgentID: "asst_1", Message: "weather?"})
	require.NoError(t, err)
	require.Equal(t, []string{
		events.TypeRunStep, events.TypeError,
		events.TypeRunStep, events.TypeWebSearch,
		events.TypeRunStep, events.TypeMessageDelta, events.TypeThreadMessage, events.TypeRunStep,
	}, eventTypes(got))

	assert.Equal(t, events.ScopeStep, got[1].(events.Error).Scope)
	assert.Equal(t, "weather today", got[3].(events.WebSearch).Query)
}

func TestPushSource_RawStreamEdgeCases(t *testing.T) {
	f := newFixture(t, 0, replyWith(agentsvctest.Reply{StreamEvents: []agentsvctest.StreamEvent{
		{Name: "thread.vector_store.created", Data: map[string]string{"id": "vs_1"}},
		{Name: "thread.run.step.completed", Data: "{not json"},
		{Name: "error", Data: map[string]any{"error": map[string]string{"code": "server_error", "message": "upstream hiccup"}}},
		{Name: "thread.message.delta", Data: map[string]any{"id": "msg_1", "delta": map[string]any{"content": []map[string]any{{"index": 0, "type": "text", "text": map[string]string{"value": "part"}}}}}},
		{Name: "done", Data: "[DONE]"},
		{Name: "thread.message.delta", Data: map[string]any{"id": "msg_1"}},
	}}))

	got, err := collect(t, f.pushSource(), Turn{AgentID: "asst_1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, []string{
		events.TypeCreateThread,
		events.TypeError,
		events.TypeError,
		events.TypeError,
		events.TypeMessageDelta,
	}, eventTypes(got))

	unhandled := got[1].(events.Error)
	assert.Equal(t, events.ScopeUnhandled, unhandled.Scope)
	assert.Equal(t, "thread.vector_store.created", unhandled.SourceEvent)
	assert.JSONEq(t, `{"id":"vs_1"}`, unhandled.Payload)

	assert.Equal(t, events.ScopeStream, got[2].(events.Error).Scope)

	streamErr := got[3].(events.Error)
	assert.Equal(t, events.ScopeStream, streamErr.Scope)
	assert.Equal(t, "upstream hiccup", streamErr.Message)

	assert.Equal(t, "part", got[4].(events.MessageDelta).Text)
}

func TestPushSource_StreamWithoutDone(t *testing.T) {
	f := newFixture(t, 0, replyWith(agentsvctest.Reply{StreamEvents: []agentsvctest.StreamEvent{
		{Name: "thread.run.created", Data: map[string]string{"id": "run_1", "status": "queued"}},
	}}))

	got, err := collect(t, f.pushSource(), Turn{AgentID: "asst_1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeCreateThread, events.TypeError}, eventTypes(got))
	assert.Equal(t, "agent stream closed without completion", got[1].(events.Error).Message)
}

func TestPushSource_UnknownAgentIsInfrastructureError(t *testing.T) {
	f := newFixture(t, 0, agentsvctest.WithAgent("asst_known", "Known"))

	got, err := collect(t, f.pushSource(), Turn{AgentID: "asst_unknown", Message: "hello"})
	require.Error(t, err)
	assert.Equal(t, []string{events.TypeCreateThread}, eventTypes(got))

	var apiErr *agentsvc.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

// stubStream replays notifications and then behaves as configured.
type stubStream struct {
	notifications []agentsvc.Notification
	// block keeps the stream open until ctx is cancelled.
	block bool
	// endless keeps sending the last notification until ctx is cancelled.
	endless  bool
	err      error
	returned atomic.Bool
}

func (s *stubStream) CreateMessage(ctx context.Context, threadID, role, content string) (*agentsvc.Message, error) {
	return &agentsvc.Message{ID: "msg_user"}, nil
}

func (s *stubStream) StreamRun(ctx context.Context, threadID, agentID string, handle agentsvc.Handler) error {
	defer s.returned.Store(true)
	for _, n := range s.notifications {
		if err := handle(n); err != nil {
			if errors.Is(err, agentsvc.ErrStopStream) {
				return nil
			}
			return err
		}
	}
	if s.endless && len(s.notifications) > 0 {
		last := s.notifications[len(s.notifications)-1]
		for {
			if err := handle(last); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func notification(event string, data any) agentsvc.Notification {
	raw, _ := json.Marshal(data)
	return agentsvc.Notification{Kind: agentsvc.KindOf(event), Event: event, Data: raw}
}

func TestPushSource_IdleTimeoutFallback(t *testing.T) {
	stream := &stubStream{
		notifications: []agentsvc.Notification{
			notification("thread.message.delta", map[string]any{"id": "msg_1", "delta": map[string]any{"content": []map[string]any{{"type": "text", "text": map[string]string{"value": "Hel"}}}}}),
		},
		block: true,
	}
	src := NewPushSource(stream, stubResolver{}, PushOptions{IdleTimeout: 50 * time.Millisecond})

	got, err := collect(t, src, Turn{ThreadID: "thread_1", AgentID: "asst_1", Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeMessageDelta, events.TypeError}, eventTypes(got))
	assert.Equal(t, events.ScopeTimeout, got[1].(events.Error).Scope)
	assert.True(t, stream.returned.Load(), "producer must be stopped before the iterator returns")
}

func TestPushSource_ConsumerBreakStopsProducer(t *testing.T) {
	stream := &stubStream{
		notifications: []agentsvc.Notification{
			notification("thread.message.delta", map[string]any{"id": "msg_1", "delta": map[string]any{"content": []map[string]any{{"type": "text", "text": map[string]string{"value": "x"}}}}}),
		},
		endless: true,
	}
	src := NewPushSource(stream, stubResolver{}, PushOptions{IdleTimeout: -1})

	count := 0
	for _, err := range src.Events(context.Background(), Turn{ThreadID: "thread_1", AgentID: "asst_1", Message: "hi"}) {
		require.NoError(t, err)
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
	assert.True(t, stream.returned.Load())
}

func TestPushSource_InterruptedStream(t *testing.T) {
	stream := &stubStream{err: errors.New("unexpected EOF")}
	src := NewPushSource(stream, stubResolver{created: true}, PushOptions{})

	got, err := collect(t, src, Turn{AgentID: "asst_1", Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, []string{events.TypeCreateThread, events.TypeError}, eventTypes(got))
	assert.Equal(t, "agent stream interrupted: unexpected EOF", got[1].(events.Error).Message)
}

func TestPushSource_CancelledContext(t *testing.T) {
	stream := &stubStream{block: true}
	src := NewPushSource(stream, stubResolver{}, PushOptions{IdleTimeout: -1})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var got []events.Event
	for ev, err := range src.Events(ctx, Turn{ThreadID: "thread_1", AgentID: "asst_1", Message: "hi"}) {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Empty(t, got)
	assert.True(t, stream.returned.Load())
}

func TestPushSource_TranslateRunStates(t *testing.T) {
	src := NewPushSource(&stubStream{}, stubResolver{}, PushOptions{})
	logger := src.logger

	assert.Empty(t, src.translate(logger, notification("thread.run.in_progress", agentsvc.Run{ID: "run_1", Status: agentsvc.RunStatusInProgress})))
	assert.Empty(t, src.translate(logger, notification("thread.run.completed", agentsvc.Run{ID: "run_1", Status: agentsvc.RunStatusCompleted})))
	assert.Empty(t, src.translate(logger, notification("thread.created", agentsvc.Thread{ID: "thread_1"})))
	assert.Empty(t, src.translate(logger, notification("thread.run.step.delta", map[string]string{})))
	assert.Empty(t, src.translate(logger, notification("thread.message.created", agentsvc.Message{ID: "msg_1"})))

	expired := src.translate(logger, notification("thread.run.expired", agentsvc.Run{ID: "run_1", Status: agentsvc.RunStatusExpired}))
	require.Len(t, expired, 1)
	runErr := expired[0].(events.Error)
	assert.Equal(t, events.ScopeRun, runErr.Scope)
	assert.Equal(t, "expired", runErr.Code)
}

func TestSources_For(t *testing.T) {
	poll := NewPollSource(nil, stubResolver{}, PollOptions{})
	push := NewPushSource(&stubStream{}, stubResolver{}, PushOptions{})
	yes, no := true, false

	sources := Sources{Poll: poll, Push: push, Default: ModePoll}
	src, mode := sources.For(nil)
	assert.Same(t, poll, src.(*PollSource))
	assert.Equal(t, ModePoll, mode)

	src, mode = sources.For(&yes)
	assert.Same(t, push, src.(*PushSource))
	assert.Equal(t, ModeStream, mode)

	sources.Default = ModeStream
	_, mode = sources.For(nil)
	assert.Equal(t, ModeStream, mode)
	_, mode = sources.For(&no)
	assert.Equal(t, ModePoll, mode)

	_, mode = Sources{Poll: poll, Default: ModeStream}.For(nil)
	assert.Equal(t, ModePoll, mode)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePoll, m)

	m, err = ParseMode("stream")
	require.NoError(t, err)
	assert.Equal(t, ModeStream, m)

	_, err = ParseMode("websocket")
	assert.Error(t, err)
}
