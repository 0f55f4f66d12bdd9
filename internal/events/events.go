// ABOUTME: Closed set of outbound events streamed to chat clients as NDJSON.
// ABOUTME: Each event is an immutable value carrying a fixed "type" discriminant.

package events

// Wire values of the "type" discriminant.
const (
	TypeCreateThread  = "create_thread"
	TypeText          = "text"
	TypeMessageDelta  = "MessageDelta"
	TypeCitations     = "citations_event"
	TypeWebSearch     = "bing_grounding"
	TypeFileSearch    = "file_search_event"
	TypeRunStep       = "RunStep"
	TypeThreadMessage = "ThreadMessage"
	TypeError         = "error"
)

// RoleAssistant is the role reported on agent-authored text.
const RoleAssistant = "assistant"

// Event is one unit of streamed output.
type Event interface {
	// EventType returns the wire discriminant.
	EventType() string
	isEvent()
}

// ThreadCreated reports the identifier of a newly created thread.
type ThreadCreated struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
}

// NewThreadCreated returns a create_thread event.
func NewThreadCreated(threadID string) ThreadCreated {
	return ThreadCreated{Type: TypeCreateThread, ThreadID: threadID}
}

func (e ThreadCreated) EventType() string { return e.Type }
func (ThreadCreated) isEvent()            {}

// Text is one complete text segment of an agent reply.
type Text struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// NewText returns a text event authored by the assistant.
func NewText(message string) Text {
	return Text{Type: TypeText, Role: RoleAssistant, Message: message}
}

func (e Text) EventType() string { return e.Type }
func (Text) isEvent()            {}

// MessageDelta is an incremental chunk of a message being streamed.
type MessageDelta struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// NewMessageDelta returns a MessageDelta event.
func NewMessageDelta(messageID, text string) MessageDelta {
	return MessageDelta{Type: TypeMessageDelta, MessageID: messageID, Text: text}
}

func (e MessageDelta) EventType() string { return e.Type }
func (MessageDelta) isEvent()            {}

// Citation is one URL reference attached to a character range of a reply.
type Citation struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// CitationTypeURL is the only citation kind the relay emits.
const CitationTypeURL = "url_citation"

// Citations groups every URL citation of one reply.
type Citations struct {
	Type      string     `json:"type"`
	Citations []Citation `json:"citations"`
}

// NewCitations returns a citations_event. Citations with an empty URL are
// dropped; ok is false when nothing remains.
func NewCitations(citations []Citation) (Citations, bool) {
	kept := make([]Citation, 0, len(citations))
	for _, c := range citations {
		if c.URL == "" {
			continue
		}
		if c.Type == "" {
			c.Type = CitationTypeURL
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return Citations{}, false
	}
	return Citations{Type: TypeCitations, Citations: kept}, true
}

func (e Citations) EventType() string { return e.Type }
func (Citations) isEvent()            {}

// WebSearch tells the client the agent searched the web.
type WebSearch struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Query string `json:"query"`
}

// NewWebSearch returns a bing_grounding event.
func NewWebSearch(title, url, query string) WebSearch {
	return WebSearch{Type: TypeWebSearch, Title: title, URL: url, Query: query}
}

func (e WebSearch) EventType() string { return e.Type }
func (WebSearch) isEvent()            {}

// FileSearchItem is one retrieved document snippet.
type FileSearchItem struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// FileSearchResults groups the snippets returned by one file-search step.
type FileSearchResults struct {
	Type    string           `json:"type"`
	Results []FileSearchItem `json:"results"`
}

// NewFileSearchResults returns a file_search_event. Items with neither a name
// nor content are dropped; ok is false when nothing remains.
func NewFileSearchResults(items []FileSearchItem) (FileSearchResults, bool) {
	kept := make([]FileSearchItem, 0, len(items))
	for _, item := range items {
		if item.Name == "" && item.Content == "" {
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return FileSearchResults{}, false
	}
	return FileSearchResults{Type: TypeFileSearch, Results: kept}, true
}

func (e FileSearchResults) EventType() string { return e.Type }
func (FileSearchResults) isEvent()            {}

// RunStep reports a state change of a run step that carries no other payload.
type RunStep struct {
	Type     string `json:"type"`
	StepID   string `json:"step_id"`
	StepType string `json:"step_type"`
	Status   string `json:"status"`
}

// NewRunStep returns a RunStep event.
func NewRunStep(stepID, stepType, status string) RunStep {
	return RunStep{Type: TypeRunStep, StepID: stepID, StepType: stepType, Status: status}
}

func (e RunStep) EventType() string { return e.Type }
func (RunStep) isEvent()            {}

// ThreadMessage reports a streamed message that reached a final state.
type ThreadMessage struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
	Content   string `json:"content,omitempty"`
	Status    string `json:"status,omitempty"`
}

// NewThreadMessage returns a ThreadMessage event.
func NewThreadMessage(messageID, role, content, status string) ThreadMessage {
	return ThreadMessage{Type: TypeThreadMessage, MessageID: messageID, Role: role, Content: content, Status: status}
}

func (e ThreadMessage) EventType() string { return e.Type }
func (ThreadMessage) isEvent()            {}
