// ABOUTME: HTTP client for the hosted agent service: threads, messages, runs, steps.
// ABOUTME: Blocking calls are bounded by RequestTimeout; runs are polled to completion.

package agentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIVersion is sent when Config.APIVersion is empty.
const DefaultAPIVersion = "2025-05-01"

// fileSearchContentInclude asks ListRunSteps to inline file-search excerpts.
const fileSearchContentInclude = "step_details.tool_calls[*].file_search.results[*].content"

// Config configures a Client.
type Config struct {
	Endpoint       string
	APIVersion     string
	APIKey         string
	BearerToken    string
	RequestTimeout time.Duration
	RunTimeout     time.Duration
	PollInterval   time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client talks to the agent service. It is safe for concurrent use.
type Client struct {
	endpoint       string
	apiVersion     string
	apiKey         string
	bearerToken    string
	requestTimeout time.Duration
	runTimeout     time.Duration
	pollInterval   time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// New creates a Client. Zero durations fall back to defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}

	c := &Client{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		apiVersion:     cfg.APIVersion,
		apiKey:         cfg.APIKey,
		bearerToken:    cfg.BearerToken,
		requestTimeout: cfg.RequestTimeout,
		runTimeout:     cfg.RunTimeout,
		pollInterval:   cfg.PollInterval,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 30 * time.Second
	}
	if c.runTimeout <= 0 {
		c.runTimeout = 5 * time.Minute
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	// No client-level timeout: it would cut long-lived streams. Blocking
	// calls get a per-request deadline instead.
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "agentsvc")
	return c, nil
}

// GetAgent looks up an agent definition.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	if err := c.doJSON(ctx, http.MethodGet, "/assistants/"+url.PathEscape(agentID), nil, nil, &agent); err != nil {
		return nil, fmt.Errorf("getting agent %s: %w", agentID, err)
	}
	return &agent, nil
}

// CreateThread creates an empty thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.doJSON(ctx, http.MethodPost, "/threads", nil, map[string]any{}, &thread); err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", thread.ID)
	return &thread, nil
}

// DeleteThread deletes a thread.
func (c *Client) DeleteThread(ctx context.Context, threadID string) (*ThreadDeletion, error) {
	var del ThreadDeletion
	if err := c.doJSON(ctx, http.MethodDelete, "/threads/"+url.PathEscape(threadID), nil, nil, &del); err != nil {
		return nil, fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	return &del, nil
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]string{"role": role, "content": content}
	var msg Message
	if err := c.doJSON(ctx, http.MethodPost, threadPath(threadID, "messages"), nil, body, &msg); err != nil {
		return nil, fmt.Errorf("creating message in thread %s: %w", threadID, err)
	}
	return &msg, nil
}

// ListMessagesOptions filters ListMessages.
type ListMessagesOptions struct {
	// Order is "asc" or "desc"; empty means "desc".
	Order string
	Limit int
	RunID string
}

// ListMessages lists thread messages, newest first unless Order says otherwise.
func (c *Client) ListMessages(ctx context.Context, threadID string, opts ListMessagesOptions) (*MessageList, error) {
	q := url.Values{}
	order := opts.Order
	if order == "" {
		order = "desc"
	}
	q.Set("order", order)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.RunID != "" {
		q.Set("run_id", opts.RunID)
	}

	var list MessageList
	if err := c.doJSON(ctx, http.MethodGet, threadPath(threadID, "messages"), q, nil, &list); err != nil {
		return nil, fmt.Errorf("listing messages in thread %s: %w", threadID, err)
	}
	return &list, nil
}

// runRequest is the body of POST /threads/{id}/runs.
type runRequest struct {
	AssistantID string `json:"assistant_id"`
	Stream      bool   `json:"stream,omitempty"`
}

// CreateRun starts a run without waiting for it.
func (c *Client) CreateRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodPost, threadPath(threadID, "runs"), nil, runRequest{AssistantID: agentID}, &run); err != nil {
		return nil, fmt.Errorf("creating run in thread %s: %w", threadID, err)
	}
	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.doJSON(ctx, http.MethodGet, threadPath(threadID, "runs", runID), nil, nil, &run); err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return &run, nil
}

// CreateAndProcessRun starts a run and blocks until it reaches a terminal
// status. It returns ErrRunTimeout when RunTimeout elapses first.
func (c *Client) CreateAndProcessRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	run, err := c.CreateRun(ctx, threadID, agentID)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(c.runTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			c.logger.Warn("run timed out", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
			return run, ErrRunTimeout
		case <-ticker.C:
		}

		run, err = c.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("polled run", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	}
	return run, nil
}

// ListRunSteps lists the steps of a run in creation order. With
// includeFileContent the service inlines file-search result excerpts.
func (c *Client) ListRunSteps(ctx context.Context, threadID, runID string, includeFileContent bool) ([]RunStep, error) {
	q := url.Values{}
	q.Set("order", "asc")
	if includeFileContent {
		q.Add("include[]", fileSearchContentInclude)
	}

	var list RunStepList
	if err := c.doJSON(ctx, http.MethodGet, threadPath(threadID, "runs", runID, "steps"), q, nil, &list); err != nil {
		return nil, fmt.Errorf("listing steps of run %s: %w", runID, err)
	}
	return list.Data, nil
}

// threadPath joins escaped segments below /threads/{threadID}.
func threadPath(threadID string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/threads/")
	b.WriteString(url.PathEscape(threadID))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// newRequest builds an authenticated request for path with the api-version set.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	target := c.endpoint + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	return req, nil
}

// doJSON performs one bounded request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
