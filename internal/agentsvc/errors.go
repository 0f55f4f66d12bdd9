// ABOUTME: Error types returned by the agent service client.
// ABOUTME: APIError carries the HTTP status and the service's error code/message.

package agentsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound matches an APIError with status 404.
	ErrNotFound = errors.New("agent service: not found")

	// ErrRunTimeout is returned when a run does not finish within RunTimeout.
	ErrRunTimeout = errors.New("agent service: run did not complete in time")

	// ErrMissingEndpoint is returned by New without an endpoint.
	ErrMissingEndpoint = errors.New("agent service: endpoint is required")
)

// APIError is a non-2xx response from the agent service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent service error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agent service error (status %d): %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// errorEnvelope is the {"error": {...}} body the service returns on failure.
type errorEnvelope struct {
	Error *LastError `json:"error"`
}

// newAPIError builds an APIError from a response status and body.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
