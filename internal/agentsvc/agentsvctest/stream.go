// ABOUTME: Server-sent event rendering of a scripted run for the fake agent service.
// ABOUTME: Generates the run, step and message lifecycle events the real service pushes.

package agentsvctest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/agent-relay/internal/agentsvc"
)

// writeStream renders a played run as a text/event-stream response.
func (s *Server) writeStream(w http.ResponseWriter, state *runState, msg *agentsvc.Message, reply Reply) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	send := func(ev StreamEvent) {
		var data string
		switch d := ev.Data.(type) {
		case string:
			data = d
		default:
			raw, err := json.Marshal(d)
			if err != nil {
				data = fmt.Sprintf("%q", err.Error())
			} else {
				data = string(raw)
			}
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if reply.StreamEvents != nil {
		for _, ev := range reply.StreamEvents {
			send(ev)
		}
		return
	}

	for _, ev := range generatedEvents(state, msg) {
		send(ev)
	}
}

// generatedEvents is the event sequence of a normal streamed run.
func generatedEvents(state *runState, msg *agentsvc.Message) []StreamEvent {
	run := state.final
	pending := run
	pending.Status = agentsvc.RunStatusQueued
	pending.LastError = nil
	running := pending
	running.Status = agentsvc.RunStatusInProgress

	evs := []StreamEvent{
		{Name: "thread.run.created", Data: pending},
		{Name: "thread.run.in_progress", Data: running},
	}

	for _, step := range state.steps {
		created := step
		created.Status = agentsvc.RunStatusInProgress
		created.LastError = nil
		evs = append(evs, StreamEvent{Name: "thread.run.step.created", Data: created})

		if step.Type == agentsvc.StepTypeMessageCreation && msg != nil {
			evs = append(evs, messageEvents(msg)...)
		}
		evs = append(evs, StreamEvent{Name: "thread.run.step." + string(step.Status), Data: step})
	}

	evs = append(evs,
		StreamEvent{Name: "thread.run." + string(run.Status), Data: run},
		StreamEvent{Name: "done", Data: "[DONE]"},
	)
	return evs
}

// messageEvents streams a message as created, one delta per text part, and
// completed.
func messageEvents(msg *agentsvc.Message) []StreamEvent {
	created := *msg
	created.Status = "in_progress"
	created.Content = nil

	evs := []StreamEvent{{Name: "thread.message.created", Data: created}}
	for _, part := range msg.Content {
		if part.Text == nil {
			continue
		}
		var delta agentsvc.MessageDelta
		delta.ID = msg.ID
		delta.Delta.Content = []agentsvc.MessageContent{
			{Index: part.Index, Type: "text", Text: &agentsvc.MessageText{Value: part.Text.Value}},
		}
		evs = append(evs, StreamEvent{Name: "thread.message.delta", Data: delta})
	}
	return append(evs, StreamEvent{Name: "thread.message.completed", Data: *msg})
}
