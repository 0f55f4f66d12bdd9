// ABOUTME: HTTP API handlers for chat turns and thread deletion.
// ABOUTME: POST /chat streams NDJSON events; POST /delete_thread returns a JSON confirmation.

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/agent-relay/internal/agent"
	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/conversation"
	"github.com/2389/agent-relay/internal/metrics"
	"github.com/2389/agent-relay/internal/ndjson"
)

// maxRequestBody caps request bodies.
const maxRequestBody = 1 << 20

// ThreadID accepts a JSON string, number, or null. Clients send -1 or null
// to ask for a new thread.
type ThreadID string

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThreadID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ThreadID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.New("thread_id must be a string, number, or null")
		}
		*t = ThreadID(n.String())
	}
	return nil
}

// ChatRequest is the JSON request body for POST /chat.
type ChatRequest struct {
	ThreadID ThreadID `json:"thread_id"`
	AgentID  string   `json:"agent_id"`
	Message  string   `json:"message"`
	// Stream overrides agent_service.mode for this request.
	Stream *bool `json:"stream,omitempty"`
}

// DeleteThreadRequest is the JSON request body for POST /delete_thread.
type DeleteThreadRequest struct {
	ThreadID ThreadID `json:"thread_id"`
}

// DeleteThreadResponse is the JSON response for POST /delete_thread.
type DeleteThreadResponse struct {
	Message string `json:"message"`
}

// handleChat handles POST /chat and POST /.
// It validates the body, picks a source, and streams the turn's events as NDJSON.
// Once streaming starts the status is always 200; failures arrive as events.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBody), g.config.AgentService.DefaultAgentID)
	if err != nil {
		g.dedupe.ReleaseRequest(r)
		g.sendJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	source, mode := g.sources.For(req.Stream)
	logger := g.requestLogger(r).With("mode", string(mode), "agent_id", req.AgentID, "thread_id", string(req.ThreadID))
	logger.Info("chat turn started")

	done := g.metrics.StreamStarted(string(mode))
	defer done()
	start := time.Now()

	w.Header().Set("Content-Type", ndjson.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	turn := agent.Turn{
		ThreadID: string(req.ThreadID),
		AgentID:  req.AgentID,
		Message:  req.Message,
	}
	lines, err := ndjson.Encode(w, g.observe(source.Events(r.Context(), turn), logger))
	if err != nil {
		logger.Info("client went away", "lines", lines, "error", err)
		return
	}
	logger.Info("chat turn finished", "lines", lines, "duration", time.Since(start))
}

// parseChatRequest parses and validates a ChatRequest. An absent agent_id
// falls back to defaultAgent.
func parseChatRequest(r io.Reader, defaultAgent string) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}

	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		req.AgentID = defaultAgent
	}
	if req.AgentID == "" {
		return nil, errors.New("agent_id is required (no default agent configured)")
	}

	return &req, nil
}

// handleDeleteThread handles POST /delete_thread.
// Unknown threads map to 404; other agent-service failures to 500 with the cause.
func (g *Gateway) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	var req DeleteThreadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		g.dedupe.ReleaseRequest(r)
		g.sendJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	threadID := strings.TrimSpace(string(req.ThreadID))
	if threadID == "" {
		g.dedupe.ReleaseRequest(r)
		g.sendJSONError(w, http.StatusUnprocessableEntity, conversation.ErrMissingThreadID.Error())
		return
	}

	logger := g.requestLogger(r).With("thread_id", threadID)

	result, err := g.conversation.Delete(r.Context(), threadID)
	if err != nil {
		var delErr *conversation.DeleteError
		switch {
		case errors.Is(err, agentsvc.ErrNotFound):
			g.metrics.ObserveDeletion(metrics.DeletionNotFound)
			g.sendJSONError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &delErr):
			g.metrics.ObserveDeletion(metrics.DeletionFailed)
			logger.Error("failed to delete thread", "error", delErr.Err)
			g.sendJSONError(w, http.StatusInternalServerError, delErr.Error())
		default:
			g.metrics.ObserveDeletion(metrics.DeletionFailed)
			logger.Error("failed to delete thread", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	g.metrics.ObserveDeletion(metrics.DeletionOK)
	g.writeJSON(w, http.StatusOK, DeleteThreadResponse{Message: result.Message})
}

// writeJSON writes v as a JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"detail": message})
}
