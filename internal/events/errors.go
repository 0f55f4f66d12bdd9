// ABOUTME: Error events: run, step, stream, timeout and unhandled-event failures.
// ABOUTME: All share the "error" type tag and are distinguished by Scope.

package events

// Scope says which layer an error event came from.
type Scope string

const (
	ScopeRun       Scope = "run"
	ScopeStep      Scope = "step"
	ScopeStream    Scope = "stream"
	ScopeUnhandled Scope = "unhandled"
	ScopeTimeout   Scope = "timeout"
)

// Error is an error reported to the client as data.
type Error struct {
	Type        string `json:"type"`
	Scope       Scope  `json:"scope"`
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	SourceEvent string `json:"event_type,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

// NewRunError reports a failed run. It ends the stream.
func NewRunError(code, message string) Error {
	return Error{Type: TypeError, Scope: ScopeRun, Code: code, Message: message}
}

// NewStepError reports a failed run step.
func NewStepError(stepID, code, message string) Error {
	return Error{Type: TypeError, Scope: ScopeStep, StepID: stepID, Code: code, Message: message}
}

// NewStreamError reports a stream-level failure from the agent service or
// a notification the relay could not translate.
func NewStreamError(message string) Error {
	return Error{Type: TypeError, Scope: ScopeStream, Message: message}
}

// NewUnhandledError carries a notification the relay does not recognize.
func NewUnhandledError(eventType, payload string) Error {
	return Error{
		Type:        TypeError,
		Scope:       ScopeUnhandled,
		Message:     "unhandled event type: " + eventType,
		SourceEvent: eventType,
		Payload:     payload,
	}
}

// NewTimeoutError reports that the agent service stopped answering in time.
func NewTimeoutError(message string) Error {
	return Error{Type: TypeError, Scope: ScopeTimeout, Code: "timeout", Message: message}
}

func (e Error) EventType() string { return e.Type }
func (Error) isEvent()            {}

// Terminal reports whether the error ends the stream.
func (e Error) Terminal() bool {
	return e.Scope == ScopeRun || e.Scope == ScopeTimeout
}
