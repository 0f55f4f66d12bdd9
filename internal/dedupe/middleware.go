// ABOUTME: HTTP middleware rejecting repeated requests with the same Idempotency-Key.
// ABOUTME: Keys are scoped by method and path; requests without the header pass through.

package dedupe

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HeaderName is the request header carrying the idempotency key.
const HeaderName = "Idempotency-Key"

// Middleware returns 409 Conflict for a request whose key was already
// claimed within the TTL. A nil cache disables the check.
func Middleware(cache *Cache, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if cache == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderName)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !cache.Claim(requestKey(r, key)) {
				logger.Info("duplicate request rejected", "path", r.URL.Path, "idempotency_key", key)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"detail": "duplicate request: Idempotency-Key " + key + " was already used",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request, key string) string {
	return r.Method + " " + r.URL.Path + " " + key
}

// ReleaseRequest forgets the claim made for r, so a client can retry a
// request that was rejected before doing any work. A nil cache is a no-op.
func (c *Cache) ReleaseRequest(r *http.Request) {
	if c == nil {
		return
	}
	if key := r.Header.Get(HeaderName); key != "" {
		c.Release(requestKey(r, key))
	}
}
