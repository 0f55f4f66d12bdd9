// Package agent turns one chat turn into a sequence of client events.
//
// # Sources
//
// A Source runs a turn against the agent service and returns the resulting
// events lazily as an iter.Seq2[events.Event, error]:
//
//	for ev, err := range src.Events(ctx, agent.Turn{ThreadID: id, AgentID: a, Message: m}) {
//	    ...
//	}
//
// Two implementations exist:
//
//   - PollSource starts a run, polls it to a terminal state, then fetches the
//     reply and the run steps. Everything arrives after the run finishes.
//   - PushSource opens a streamed run. A producer goroutine translates each
//     notification and enqueues it; the iterator yields queue items in
//     arrival order until the done notification.
//
// Both resolve the thread first and yield a create_thread event only when a
// new thread was created.
//
// # Errors
//
// Failures the agent reports about its own work (a failed run, a failed
// step, a stream error, an unknown notification, a timeout) are yielded as
// events.Error values. A failed run or a timeout ends the sequence; step,
// stream and unhandled errors do not.
//
// Failures to talk to the agent service at all (thread creation, posting
// the message, starting the run) are yielded once as a non-nil error and
// end the sequence.
//
// # Cancellation
//
// Cancelling ctx or breaking out of the range loop stops the source and
// releases the upstream connection. PushSource waits for its producer to
// exit before the iterator returns.
package agent
