// Package gateway serves the relay's HTTP API and wires its components.
//
// # Overview
//
// New builds everything from a config.Config: the agent service client,
// the thread registry, the conversation service, both event sources, the
// dedupe cache, the JWT verifier, and a private Prometheus registry.
// Run listens on server.http_addr (and server.grpc_addr when set) and
// blocks until its context is canceled.
//
// # HTTP API
//
//   - POST /chat - one chat turn, answered as an NDJSON event stream
//   - POST / - alias of /chat
//   - POST /delete_thread - delete a thread
//   - GET /health - liveness
//   - GET /health/ready - looks up the default agent on the agent service
//   - GET /metrics - Prometheus exposition (metrics.enabled)
//
// Chat and delete routes pass through the bearer-token middleware when
// auth.jwt_secret is set, and through the Idempotency-Key check.
//
// # Chat Stream
//
// A chat body looks like:
//
//	{"thread_id": "-1", "agent_id": "asst_...", "message": "hi", "stream": true}
//
// thread_id may be omitted, null, -1, or "null" to start a new thread.
// agent_id defaults to agent_service.default_agent_id. stream overrides
// agent_service.mode for this request.
//
// Validation failures return 422 before any output. Once the first line is
// written the status is 200 and failures arrive as error events, or as a
// final {"error": "..."} line when the relay itself fails:
//
//	{"type":"create_thread","thread_id":"thread_abc"}
//	{"type":"text","role":"assistant","message":"Hello!"}
//	{"type":"citations_event","citations":[...]}
//
// A client disconnect cancels the request context, which stops the source
// and closes the upstream connection.
//
// # gRPC
//
// When server.grpc_addr is set the gateway serves grpc.health.v1.Health.
// The HealthServiceName status follows the last /health/ready probe.
package gateway
