// Package agentsvc is a client for the hosted agent service.
//
// # Overview
//
// The agent service owns the whole agent lifecycle: threads, messages, runs
// and run steps. The relay never reasons on its own; it only drives this API
// and translates what comes back. The client speaks the Assistants-style REST
// surface used by Azure AI Foundry Agents:
//
//	POST   /threads                              create a thread
//	DELETE /threads/{thread_id}                  delete a thread
//	POST   /threads/{thread_id}/messages         append a user message
//	GET    /threads/{thread_id}/messages         list messages
//	POST   /threads/{thread_id}/runs             start a run (optionally streamed)
//	GET    /threads/{thread_id}/runs/{run_id}    poll a run
//	GET    /threads/{thread_id}/runs/{run_id}/steps
//	GET    /assistants/{agent_id}                look up an agent
//
// Every request carries the api-version query parameter and either an
// api-key header or a bearer token.
//
// # Polling
//
// CreateAndProcessRun starts a run and polls it every PollInterval until it
// reaches a terminal status, giving up after RunTimeout with ErrRunTimeout.
//
// # Streaming
//
// StreamRun starts a run with stream=true and decodes the server-sent events.
// Each event becomes a Notification whose Kind is drawn from a closed set;
// the handler is invoked once per notification in arrival order. The "done"
// event is delivered as NotificationDone.
//
// # Errors
//
// Non-2xx responses are returned as *APIError. A 404 matches ErrNotFound via
// errors.Is.
package agentsvc
