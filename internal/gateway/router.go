// ABOUTME: Route table and middleware chain for the relay's HTTP surface
// ABOUTME: Assigns request IDs; protects chat and delete routes with auth and dedupe

package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/agent-relay/internal/auth"
	"github.com/2389/agent-relay/internal/dedupe"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// middleware wraps a handler.
type middleware func(http.Handler) http.Handler

// chain applies mws so the first one sees the request first.
func chain(mws ...middleware) middleware {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// routes builds the relay's handler.
//
//	POST /chat, POST /    chat turn, NDJSON response
//	POST /delete_thread   delete a thread
//	GET  /health          liveness
//	GET  /health/ready    agent service reachability
//	GET  <metrics.path>   Prometheus exposition, when enabled
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		mux.Handle("GET "+g.config.Metrics.Path, promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	protect := chain(
		auth.HTTPAuthMiddleware(g.verifier, g.logger),
		dedupe.Middleware(g.dedupe, g.logger),
	)
	chat := protect(http.HandlerFunc(g.handleChat))
	mux.Handle("POST /chat", chat)
	mux.Handle("POST /{$}", chat)
	mux.Handle("POST /delete_thread", protect(http.HandlerFunc(g.handleDeleteThread)))

	return withRequestID(mux)
}

// withRequestID keeps a caller-supplied X-Request-ID or assigns a new one,
// echoing it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requestID returns the ID assigned by withRequestID.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestLogger returns the gateway logger annotated with the request ID and caller.
func (g *Gateway) requestLogger(r *http.Request) *slog.Logger {
	logger := g.logger.With("request_id", requestID(r.Context()))
	if caller := auth.FromContext(r.Context()); caller != nil {
		logger = logger.With("caller", caller.Subject)
	}
	return logger
}
