// Package dedupe rejects repeated requests that carry the same idempotency
// key within a time window.
//
// A Cache remembers claimed keys for a TTL and holds at most a fixed number
// of them, evicting the oldest first. Middleware applies it to HTTP
// requests carrying an Idempotency-Key header: the first request with a
// key proceeds, repeats within the TTL get 409 Conflict.
package dedupe
