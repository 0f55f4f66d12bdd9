// ABOUTME: Streaming runs: decodes the agent service's server-sent events.
// ABOUTME: Every event becomes a Notification with a Kind from a closed set.

package agentsvc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// NotificationKind classifies a streamed event.
type NotificationKind int

const (
	// NotificationUnknown is any event tag the client does not recognize.
	NotificationUnknown NotificationKind = iota
	NotificationThread
	NotificationRun
	NotificationRunStep
	NotificationRunStepDelta
	NotificationMessage
	NotificationMessageDelta
	NotificationError
	NotificationDone
)

var kindNames = map[NotificationKind]string{
	NotificationUnknown:      "unknown",
	NotificationThread:       "thread",
	NotificationRun:          "run",
	NotificationRunStep:      "run_step",
	NotificationRunStepDelta: "run_step_delta",
	NotificationMessage:      "message",
	NotificationMessageDelta: "message_delta",
	NotificationError:        "error",
	NotificationDone:         "done",
}

func (k NotificationKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NotificationKind(%d)", int(k))
}

// KindOf maps a server-sent event tag such as "thread.run.step.completed"
// to its NotificationKind.
func KindOf(event string) NotificationKind {
	switch {
	case event == "done":
		return NotificationDone
	case event == "error":
		return NotificationError
	case event == "thread.created":
		return NotificationThread
	case event == "thread.run.step.delta":
		return NotificationRunStepDelta
	case strings.HasPrefix(event, "thread.run.step."):
		return NotificationRunStep
	case strings.HasPrefix(event, "thread.run."):
		return NotificationRun
	case event == "thread.message.delta":
		return NotificationMessageDelta
	case strings.HasPrefix(event, "thread.message."):
		return NotificationMessage
	default:
		return NotificationUnknown
	}
}

// Notification is one event pushed by a streaming run.
type Notification struct {
	Kind  NotificationKind
	Event string
	Data  json.RawMessage
}

// Run decodes a NotificationRun payload.
func (n Notification) Run() (*Run, error) {
	var run Run
	if err := n.decode(&run); err != nil {
		return nil, err
	}
	return &run, nil
}

// RunStep decodes a NotificationRunStep payload.
func (n Notification) RunStep() (*RunStep, error) {
	var step RunStep
	if err := n.decode(&step); err != nil {
		return nil, err
	}
	return &step, nil
}

// Message decodes a NotificationMessage payload.
func (n Notification) Message() (*Message, error) {
	var msg Message
	if err := n.decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageDelta decodes a NotificationMessageDelta payload.
func (n Notification) MessageDelta() (*MessageDelta, error) {
	var delta MessageDelta
	if err := n.decode(&delta); err != nil {
		return nil, err
	}
	return &delta, nil
}

// ErrorMessage extracts a readable message from a NotificationError
// payload, which may be an {"error": {...}} envelope, a bare error object,
// or a plain string.
func (n Notification) ErrorMessage() string {
	var env errorEnvelope
	if err := json.Unmarshal(n.Data, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	var bare LastError
	if err := json.Unmarshal(n.Data, &bare); err == nil && bare.Message != "" {
		return bare.Message
	}
	var s string
	if err := json.Unmarshal(n.Data, &s); err == nil && s != "" {
		return s
	}
	return strings.TrimSpace(string(n.Data))
}

func (n Notification) decode(v any) error {
	if err := json.Unmarshal(n.Data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", n.Event, err)
	}
	return nil
}

// Handler receives notifications in arrival order. Returning an error stops
// the stream; StreamRun then returns that error.
type Handler func(Notification) error

// ErrStopStream may be returned by a Handler to end the stream without
// reporting a failure.
var ErrStopStream = errors.New("agent service: stream stopped by handler")

// StreamRun starts a streamed run and feeds every event to handle until the
// service closes the stream, handle returns an error, or ctx is done.
// A clean end of stream returns nil even if no done event arrived; callers
// that need the done event must track it themselves.
func (c *Client) StreamRun(ctx context.Context, threadID, agentID string, handle Handler) error {
	req, err := c.newRequest(ctx, http.MethodPost, threadPath(threadID, "runs"), nil, runRequest{AssistantID: agentID, Stream: true})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("starting streamed run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return newAPIError(resp.StatusCode, body)
	}

	c.logger.Debug("streamed run started", "thread_id", threadID, "agent_id", agentID)
	err = readEvents(resp.Body, handle)
	if errors.Is(err, ErrStopStream) {
		return nil
	}
	return err
}

// readEvents parses a text/event-stream body. Multi-line data fields are
// joined with newlines; a "[DONE]" data line is reported as done.
func readEvents(r io.Reader, handle Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	var data []string

	dispatch := func() error {
		if event == "" && len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		name := event
		if payload == "[DONE]" {
			name = "done"
		}
		if name == "" {
			name = "message"
		}
		event, data = "", nil
		return handle(Notification{Kind: KindOf(name), Event: name, Data: json.RawMessage(payload)})
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return dispatch()
}
