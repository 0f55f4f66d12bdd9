// Package conversation manages the lifecycle of agent-service threads.
//
// # Overview
//
// The conversation package sits between the HTTP handlers, the response
// normalizer, and the agent service. It decides whether a chat turn resumes
// an existing thread or needs a new one, and it deletes threads on request.
//
// # Resolving threads
//
// A client that has no thread yet sends an empty thread ID, or one of the
// placeholders "-1" and "null". Any of these creates a fresh thread:
//
//	res, err := svc.Resolve(ctx, req.ThreadID, agentID)
//	if res.Created {
//	    // tell the client about res.ThreadID
//	}
//
// Any other ID is used as is. The service does not check that the thread
// still exists; a stale ID surfaces as an agent-service error on the
// following call.
//
// # Deleting threads
//
// Delete forwards to the agent service and wraps every failure in a
// *DeleteError that names the thread and keeps the cause:
//
//	var delErr *conversation.DeleteError
//	if errors.As(err, &delErr) { ... }
//
// # Registry
//
// Created and deleted threads are written to the thread registry. Registry
// failures are logged and never fail the request.
package conversation
