// ABOUTME: Observation tap over a chat turn's event sequence
// ABOUTME: Counts emitted events and failures and logs each event at debug level

package gateway

import (
	"iter"
	"log/slog"

	"github.com/2389/agent-relay/internal/events"
)

// observe passes seq through unchanged while recording metrics and logs.
func (g *Gateway) observe(seq iter.Seq2[events.Event, error], logger *slog.Logger) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for ev, err := range seq {
			switch {
			case err != nil:
				g.metrics.ObserveFailure("relay")
				logger.Error("chat turn failed", "error", err)
			case ev != nil:
				g.metrics.ObserveEvent(ev.EventType())
				if e, ok := ev.(events.Error); ok {
					g.metrics.ObserveFailure(failureCode(e))
					logger.Warn("error event", "scope", e.Scope, "code", e.Code, "message", e.Message)
				} else {
					logger.Debug("event emitted", "type", ev.EventType())
				}
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

// failureCode labels an error event: its code, else its scope.
func failureCode(e events.Error) string {
	if e.Code != "" {
		return e.Code
	}
	return string(e.Scope)
}
