// ABOUTME: Wire types of the agent service REST API (threads, messages, runs, steps).
// ABOUTME: Includes helpers to pull text segments and URL citations out of messages.

package agentsvc

import "strings"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Agent is an agent definition hosted by the service.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Model  string `json:"model"`
	Object string `json:"object"`
}

// Thread is a conversation session.
type Thread struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
}

// ThreadDeletion is the confirmation returned by DeleteThread.
type ThreadDeletion struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// RunStatus is the lifecycle state of a run or run step.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Terminal reports whether no further transitions will happen.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCancelled, RunStatusFailed, RunStatusCompleted, RunStatusExpired, RunStatusIncomplete:
		return true
	default:
		return false
	}
}

// LastError is the service-reported failure of a run or step.
type LastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Usage is the token accounting of a run.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Run is one execution of an agent against a thread.
type Run struct {
	ID          string     `json:"id"`
	Object      string     `json:"object"`
	ThreadID    string     `json:"thread_id"`
	AssistantID string     `json:"assistant_id"`
	Status      RunStatus  `json:"status"`
	LastError   *LastError `json:"last_error,omitempty"`
	Usage       *Usage     `json:"usage,omitempty"`
	CreatedAt   int64      `json:"created_at"`
}

// Message is a thread message.
type Message struct {
	ID          string           `json:"id"`
	Object      string           `json:"object"`
	ThreadID    string           `json:"thread_id"`
	RunID       string           `json:"run_id,omitempty"`
	AssistantID string           `json:"assistant_id,omitempty"`
	Role        string           `json:"role"`
	Status      string           `json:"status,omitempty"`
	Content     []MessageContent `json:"content"`
	CreatedAt   int64            `json:"created_at"`
}

// MessageContent is one content part of a message.
type MessageContent struct {
	Index int          `json:"index,omitempty"`
	Type  string       `json:"type"`
	Text  *MessageText `json:"text,omitempty"`
}

// MessageText is the text of a content part and its annotations.
type MessageText struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation types.
const (
	AnnotationURLCitation  = "url_citation"
	AnnotationFileCitation = "file_citation"
)

// Annotation marks a character range of a text part.
type Annotation struct {
	Type        string       `json:"type"`
	Text        string       `json:"text,omitempty"`
	StartIndex  int          `json:"start_index"`
	EndIndex    int          `json:"end_index"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation is the target of a url_citation annotation.
type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// TextContents returns the text value of every text part, in order.
func (m *Message) TextContents() []string {
	var out []string
	for _, c := range m.Content {
		if c.Type == "text" && c.Text != nil {
			out = append(out, c.Text.Value)
		}
	}
	return out
}

// JoinedText returns all text parts concatenated.
func (m *Message) JoinedText() string {
	return strings.Join(m.TextContents(), "")
}

// URLCitations returns every url_citation annotation of the message.
func (m *Message) URLCitations() []Annotation {
	var out []Annotation
	for _, c := range m.Content {
		if c.Text == nil {
			continue
		}
		for _, a := range c.Text.Annotations {
			if a.Type == AnnotationURLCitation && a.URLCitation != nil {
				out = append(out, a)
			}
		}
	}
	return out
}

// MessageList is a page of messages.
type MessageList struct {
	Object  string    `json:"object"`
	Data    []Message `json:"data"`
	FirstID string    `json:"first_id"`
	LastID  string    `json:"last_id"`
	HasMore bool      `json:"has_more"`
}

// LastMessageByRole returns the newest message with the given role, or nil.
// The list is expected in descending creation order, which is how
// ListMessages requests it; ties keep the earlier entry.
func (l *MessageList) LastMessageByRole(role string) *Message {
	var found *Message
	for i := range l.Data {
		m := &l.Data[i]
		if m.Role != role {
			continue
		}
		if found == nil || m.CreatedAt > found.CreatedAt {
			found = m
		}
	}
	return found
}

// Step types.
const (
	StepTypeToolCalls       = "tool_calls"
	StepTypeMessageCreation = "message_creation"
)

// Tool call types the relay understands.
const (
	ToolBingGrounding    = "bing_grounding"
	ToolBingCustomSearch = "bing_custom_search"
	ToolFileSearch       = "file_search"
)

// RunStep is one unit of work within a run.
type RunStep struct {
	ID          string      `json:"id"`
	Object      string      `json:"object"`
	RunID       string      `json:"run_id"`
	ThreadID    string      `json:"thread_id"`
	Type        string      `json:"type"`
	Status      RunStatus   `json:"status"`
	LastError   *LastError  `json:"last_error,omitempty"`
	StepDetails StepDetails `json:"step_details"`
}

// StepDetails holds the type-specific payload of a step.
type StepDetails struct {
	Type            string           `json:"type"`
	ToolCalls       []ToolCall       `json:"tool_calls,omitempty"`
	MessageCreation *MessageCreation `json:"message_creation,omitempty"`
}

// MessageCreation links a message_creation step to its message.
type MessageCreation struct {
	MessageID string `json:"message_id"`
}

// ToolCall is one tool invocation inside a tool_calls step.
type ToolCall struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	BingGrounding    map[string]string `json:"bing_grounding,omitempty"`
	BingCustomSearch map[string]string `json:"bing_custom_search,omitempty"`
	FileSearch       *FileSearchCall   `json:"file_search,omitempty"`
}

// WebSearchRequestURL returns the request URL of a web-search tool call.
func (t ToolCall) WebSearchRequestURL() (string, bool) {
	var fields map[string]string
	switch t.Type {
	case ToolBingGrounding:
		fields = t.BingGrounding
	case ToolBingCustomSearch:
		fields = t.BingCustomSearch
	default:
		return "", false
	}
	u, ok := fields["requesturl"]
	return u, ok
}

// FileSearchCall is the payload of a file_search tool call.
type FileSearchCall struct {
	Results []FileSearchResult `json:"results,omitempty"`
}

// FileSearchResult is one document returned by a file search.
type FileSearchResult struct {
	FileID   string              `json:"file_id"`
	FileName string              `json:"file_name"`
	Score    float64             `json:"score"`
	Content  []FileSearchContent `json:"content,omitempty"`
}

// FileSearchContent is an excerpt of a file search result.
type FileSearchContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// RunStepList is a page of run steps.
type RunStepList struct {
	Object  string    `json:"object"`
	Data    []RunStep `json:"data"`
	FirstID string    `json:"first_id"`
	LastID  string    `json:"last_id"`
	HasMore bool      `json:"has_more"`
}

// MessageDelta is the payload of a thread.message.delta event.
type MessageDelta struct {
	ID    string `json:"id"`
	Delta struct {
		Content []MessageContent `json:"content"`
	} `json:"delta"`
}

// Text returns the concatenated text of the delta.
func (d *MessageDelta) Text() string {
	var b strings.Builder
	for _, c := range d.Delta.Content {
		if c.Text != nil {
			b.WriteString(c.Text.Value)
		}
	}
	return b.String()
}
