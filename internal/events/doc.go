// Package events defines the client-facing events streamed by the relay.
//
// # Overview
//
// Every agent turn is delivered to the chat client as an ordered sequence of
// events, one JSON object per NDJSON line. Each object carries a "type"
// discriminant:
//
//	create_thread      a new conversation thread was created
//	text               one text segment of the agent's reply
//	MessageDelta       an incremental chunk of a streamed reply
//	citations_event    URL citations attached to the reply
//	bing_grounding     the agent ran a web search
//	file_search_event  snippets retrieved by a file search
//	RunStep            a run step changed state
//	ThreadMessage      a streamed message completed
//	error              a run, step, stream, timeout or unhandled-event error
//
// The set is closed: Event has an unexported marker method, so only the types
// in this package satisfy it.
//
// # Errors
//
// All error variants share the "error" tag and are told apart by Scope.
// Run failures and timeouts end a stream; step and unhandled-event errors do
// not.
package events
