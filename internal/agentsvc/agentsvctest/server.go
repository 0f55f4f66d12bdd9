// ABOUTME: In-memory fake of the agent service REST API for tests and local runs.
// ABOUTME: Scripted replies drive both polled runs and server-sent-event streams.

// Package agentsvctest provides a fake agent service.
//
// The fake implements the subset of the API used by the relay: threads,
// messages, polled and streamed runs, run steps and agent lookup. What a run
// produces is decided by a ReplyFunc, so tests can script successes, run
// failures, failed steps, tool calls and arbitrary raw stream events.
package agentsvctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agent-relay/internal/agentsvc"
)

// Reply scripts the outcome of one run.
type Reply struct {
	// Texts become the text parts of the assistant message.
	Texts []string
	// Citations are attached to the first text part.
	Citations []agentsvc.Annotation
	// Steps are reported before the message_creation step.
	Steps []agentsvc.RunStep
	// Fail makes the run fail with this error.
	Fail *agentsvc.LastError
	// NoMessage completes the run without an assistant message.
	NoMessage bool
	Usage     *agentsvc.Usage
	// StreamEvents, when set, replace the generated event stream of a
	// streamed run. The done event is not added automatically.
	StreamEvents []StreamEvent
}

// StreamEvent is one raw server-sent event. Data is marshaled to JSON unless
// it is a string, which is written as is.
type StreamEvent struct {
	Name string
	Data any
}

// ReplyFunc decides the reply to the latest user message of a thread.
type ReplyFunc func(userMessage string) Reply

// EchoReply answers every message with a single text part.
func EchoReply(userMessage string) Reply {
	return Reply{Texts: []string{"You asked: " + userMessage}}
}

type runState struct {
	final agentsvc.Run
	steps []agentsvc.RunStep
	polls int
}

type threadState struct {
	thread   agentsvc.Thread
	messages []agentsvc.Message
	runs     map[string]*runState
}

// Server is the fake agent service. It implements http.Handler.
type Server struct {
	mu              sync.Mutex
	threads         map[string]*threadState
	agents          map[string]agentsvc.Agent
	reply           ReplyFunc
	apiKey          string
	pollsBeforeDone int
	clock           int64
	requests        []string
	mux             *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithReply sets the reply script.
func WithReply(fn ReplyFunc) Option {
	return func(s *Server) { s.reply = fn }
}

// WithAgent registers a known agent. Once any agent is registered, runs
// and lookups for unknown agents fail with 404.
func WithAgent(id, name string) Option {
	return func(s *Server) {
		s.agents[id] = agentsvc.Agent{ID: id, Name: name, Model: "gpt-4o", Object: "assistant"}
	}
}

// WithAPIKey requires the api-key header on every request.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithPollsBeforeCompletion keeps polled runs in_progress for n GETs.
func WithPollsBeforeCompletion(n int) Option {
	return func(s *Server) { s.pollsBeforeDone = n }
}

// New creates a fake agent service.
func New(opts ...Option) *Server {
	s := &Server{
		threads: make(map[string]*threadState),
		agents:  make(map[string]agentsvc.Agent),
		reply:   EchoReply,
		clock:   time.Now().Unix(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /assistants/{agent_id}", s.handleGetAgent)
	mux.HandleFunc("POST /threads", s.handleCreateThread)
	mux.HandleFunc("DELETE /threads/{thread_id}", s.handleDeleteThread)
	mux.HandleFunc("POST /threads/{thread_id}/messages", s.handleCreateMessage)
	mux.HandleFunc("GET /threads/{thread_id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /threads/{thread_id}/runs", s.handleCreateRun)
	mux.HandleFunc("GET /threads/{thread_id}/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("GET /threads/{thread_id}/runs/{run_id}/steps", s.handleListSteps)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	if s.apiKey != "" && r.Header.Get("api-key") != s.apiKey {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
		return
	}
	if r.URL.Query().Get("api-version") == "" {
		writeError(w, http.StatusBadRequest, "missing_api_version", "api-version query parameter is required")
		return
	}
	s.mux.ServeHTTP(w, r)
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// HasThread reports whether a thread exists.
func (s *Server) HasThread(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[id]
	return ok
}

// ThreadCount returns the number of live threads.
func (s *Server) ThreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// tick returns a strictly increasing timestamp so message order is stable.
// Must be called with mu held.
func (s *Server) tick() int64 {
	s.clock++
	return s.clock
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": agentsvc.LastError{Code: code, Message: message}})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	s.mu.Lock()
	agent, ok := s.agents[id]
	known := len(s.agents) > 0
	s.mu.Unlock()

	if !ok {
		if known {
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No assistant found with id '%s'.", id))
			return
		}
		agent = agentsvc.Agent{ID: id, Name: id, Model: "gpt-4o", Object: "assistant"}
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	th := &threadState{
		thread: agentsvc.Thread{ID: newID("thread"), Object: "thread", CreatedAt: s.tick()},
		runs:   make(map[string]*runState),
	}
	s.threads[th.thread.ID] = th
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, th.thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("thread_id")
	s.mu.Lock()
	_, ok := s.threads[id]
	delete(s.threads, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No thread found with id '%s'.", id))
		return
	}
	writeJSON(w, http.StatusOK, agentsvc.ThreadDeletion{ID: id, Object: "thread.deleted", Deleted: true})
}

// lookupThread returns the thread or writes a 404. Must be called with mu held.
func (s *Server) lookupThread(w http.ResponseWriter, r *http.Request) *threadState {
	id := r.PathValue("thread_id")
	th, ok := s.threads[id]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No thread found with id '%s'.", id))
		return nil
	}
	return th
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.lookupThread(w, r)
	if th == nil {
		return
	}
	msg := agentsvc.Message{
		ID:        newID("msg"),
		Object:    "thread.message",
		ThreadID:  th.thread.ID,
		Role:      body.Role,
		Status:    "completed",
		CreatedAt: s.tick(),
		Content: []agentsvc.MessageContent{
			{Type: "text", Text: &agentsvc.MessageText{Value: body.Content}},
		},
	}
	th.messages = append(th.messages, msg)
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.lookupThread(w, r)
	if th == nil {
		return
	}

	data := make([]agentsvc.Message, 0, len(th.messages))
	if r.URL.Query().Get("order") == "asc" {
		data = append(data, th.messages...)
	} else {
		for i := len(th.messages) - 1; i >= 0; i-- {
			data = append(data, th.messages[i])
		}
	}
	writeJSON(w, http.StatusOK, agentsvc.MessageList{Object: "list", Data: data})
}

// lastUserMessage returns the text of the newest user message.
func (th *threadState) lastUserMessage() string {
	for i := len(th.messages) - 1; i >= 0; i-- {
		if th.messages[i].Role == agentsvc.RoleUser {
			return th.messages[i].JoinedText()
		}
	}
	return ""
}

// playRun applies a reply to a thread and returns the final run state and
// the assistant message, if any. Must be called with mu held.
func (s *Server) playRun(th *threadState, agentID string, reply Reply) (*runState, *agentsvc.Message) {
	run := agentsvc.Run{
		ID:          newID("run"),
		Object:      "thread.run",
		ThreadID:    th.thread.ID,
		AssistantID: agentID,
		Status:      agentsvc.RunStatusCompleted,
		Usage:       reply.Usage,
		CreatedAt:   s.tick(),
	}
	state := &runState{}

	for _, step := range reply.Steps {
		step.RunID = run.ID
		step.ThreadID = th.thread.ID
		step.Object = "thread.run.step"
		if step.ID == "" {
			step.ID = newID("step")
		}
		if step.Status == "" {
			step.Status = agentsvc.RunStatusCompleted
		}
		state.steps = append(state.steps, step)
	}

	if reply.Fail != nil {
		run.Status = agentsvc.RunStatusFailed
		run.LastError = reply.Fail
		state.final = run
		th.runs[run.ID] = state
		return state, nil
	}

	var msg *agentsvc.Message
	if !reply.NoMessage {
		m := agentsvc.Message{
			ID:          newID("msg"),
			Object:      "thread.message",
			ThreadID:    th.thread.ID,
			RunID:       run.ID,
			AssistantID: agentID,
			Role:        agentsvc.RoleAssistant,
			Status:      "completed",
			CreatedAt:   s.tick(),
		}
		for i, text := range reply.Texts {
			part := agentsvc.MessageContent{Index: i, Type: "text", Text: &agentsvc.MessageText{Value: text}}
			if i == 0 {
				part.Text.Annotations = reply.Citations
			}
			m.Content = append(m.Content, part)
		}
		th.messages = append(th.messages, m)
		msg = &m

		state.steps = append(state.steps, agentsvc.RunStep{
			ID:       newID("step"),
			Object:   "thread.run.step",
			RunID:    run.ID,
			ThreadID: th.thread.ID,
			Type:     agentsvc.StepTypeMessageCreation,
			Status:   agentsvc.RunStatusCompleted,
			StepDetails: agentsvc.StepDetails{
				Type:            agentsvc.StepTypeMessageCreation,
				MessageCreation: &agentsvc.MessageCreation{MessageID: m.ID},
			},
		})
	}

	state.final = run
	th.runs[run.ID] = state
	return state, msg
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AssistantID string `json:"assistant_id"`
		Stream      bool   `json:"stream"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	s.mu.Lock()
	th := s.lookupThread(w, r)
	if th == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := s.agents[body.AssistantID]; len(s.agents) > 0 && !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No assistant found with id '%s'.", body.AssistantID))
		return
	}
	reply := s.reply(th.lastUserMessage())
	state, msg := s.playRun(th, body.AssistantID, reply)
	pending := s.pollsBeforeDone > 0
	s.mu.Unlock()

	if body.Stream {
		s.writeStream(w, state, msg, reply)
		return
	}

	run := state.final
	if pending {
		run.Status = agentsvc.RunStatusQueued
		run.LastError = nil
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.lookupThread(w, r)
	if th == nil {
		return
	}
	state, ok := th.runs[r.PathValue("run_id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}

	state.polls++
	run := state.final
	if state.polls < s.pollsBeforeDone {
		run.Status = agentsvc.RunStatusInProgress
		run.LastError = nil
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.lookupThread(w, r)
	if th == nil {
		return
	}
	state, ok := th.runs[r.PathValue("run_id")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "run not found")
		return
	}

	includeContent := false
	for _, inc := range r.URL.Query()["include[]"] {
		if strings.Contains(inc, "file_search.results") {
			includeContent = true
		}
	}

	steps := make([]agentsvc.RunStep, len(state.steps))
	for i, step := range state.steps {
		steps[i] = stripFileContent(step, includeContent)
	}
	writeJSON(w, http.StatusOK, agentsvc.RunStepList{Object: "list", Data: steps})
}

// stripFileContent removes file-search excerpts unless they were requested.
func stripFileContent(step agentsvc.RunStep, keep bool) agentsvc.RunStep {
	if keep || len(step.StepDetails.ToolCalls) == 0 {
		return step
	}
	calls := make([]agentsvc.ToolCall, len(step.StepDetails.ToolCalls))
	for i, call := range step.StepDetails.ToolCalls {
		if call.FileSearch != nil {
			fs := &agentsvc.FileSearchCall{}
			for _, res := range call.FileSearch.Results {
				res.Content = nil
				fs.Results = append(fs.Results, res)
			}
			call.FileSearch = fs
		}
		calls[i] = call
	}
	step.StepDetails.ToolCalls = calls
	return step
}
