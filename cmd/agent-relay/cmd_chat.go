// ABOUTME: "agent-relay chat" sends a message to a running relay and renders the event stream
// ABOUTME: Without a message argument it runs an interactive loop that keeps the thread

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/agent-relay/internal/events"
)

var (
	chatThread  string
	chatAgent   string
	chatStream  bool
	chatVerbose bool
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "resume an existing thread")
	chatCmd.Flags().StringVar(&chatAgent, "agent", "", "agent id (default: the relay's default agent)")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "request streaming mode instead of the relay default")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "show run steps and message lifecycle events")
}

var chatCmd = &cobra.Command{
	Use:   "chat [MESSAGE]",
	Short: "Chat with the agent through a running relay",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

// chatClient posts chat turns to one relay.
type chatClient struct {
	baseURL string
	token   string
	agentID string
	stream  *bool
	http    *http.Client
}

func runChat(cmd *cobra.Command, args []string) error {
	c := &chatClient{
		baseURL: resolveBaseURL(relayURL),
		token:   bearerToken(),
		agentID: chatAgent,
		http:    &http.Client{},
	}
	if cmd.Flags().Changed("stream") {
		c.stream = &chatStream
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		_, err := c.send(cmd, chatThread, args[0], out)
		return err
	}

	thread := chatThread
	color.New(color.FgHiBlack).Fprintf(out, "Chatting via %s. Empty line or Ctrl-D to quit.\n", c.baseURL)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		color.New(color.FgGreen).Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			return nil
		}
		id, err := c.send(cmd, thread, msg, out)
		if id != "" {
			thread = id
		}
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "error: %v\n", err)
			if cmd.Context().Err() != nil {
				return nil
			}
		}
	}
}

// send posts one chat turn and renders the response. It returns the thread
// the turn ran on.
func (c *chatClient) send(cmd *cobra.Command, threadID, message string, out io.Writer) (string, error) {
	body := map[string]any{"message": message}
	if threadID != "" {
		body["thread_id"] = threadID
	}
	if c.agentID != "" {
		body["agent_id"] = c.agentID
	}
	if c.stream != nil {
		body["stream"] = *c.stream
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return threadID, err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return threadID, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	setAuth(req, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return threadID, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return threadID, fmt.Errorf("relay returned %d: %s", resp.StatusCode, readDetail(resp.Body))
	}

	created, err := renderEvents(resp.Body, out, chatVerbose)
	if created != "" {
		threadID = created
	}
	return threadID, err
}

// readDetail extracts the "detail" or "error" field of a JSON error body,
// falling back to the raw text.
func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(data))
}

// chatLine is the union of every field the relay's NDJSON lines carry.
type chatLine struct {
	Type      string                  `json:"type"`
	ThreadID  string                  `json:"thread_id"`
	Message   string                  `json:"message"`
	MessageID string                  `json:"message_id"`
	Role      string                  `json:"role"`
	Text      string                  `json:"text"`
	Content   string                  `json:"content"`
	Status    string                  `json:"status"`
	StepID    string                  `json:"step_id"`
	StepType  string                  `json:"step_type"`
	Title     string                  `json:"title"`
	URL       string                  `json:"url"`
	Query     string                  `json:"query"`
	Scope     string                  `json:"scope"`
	Code      string                  `json:"code"`
	Citations []events.Citation       `json:"citations"`
	Results   []events.FileSearchItem `json:"results"`
	Error     string                  `json:"error"`
}

// ErrRelay marks a failure the relay reported as a trailing {"error": ...} line.
var ErrRelay = errors.New("relay error")

// renderEvents prints a chat stream for a terminal. It returns the thread id
// from a create_thread event, if any.
func renderEvents(r io.Reader, w io.Writer, verbose bool) (string, error) {
	var (
		threadID string
		midLine  bool
		streamed = map[string]bool{}
	)
	endLine := func() {
		if midLine {
			fmt.Fprintln(w)
			midLine = false
		}
	}
	gray := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line chatLine
		if err := json.Unmarshal(raw, &line); err != nil {
			endLine()
			return threadID, fmt.Errorf("decoding line %q: %w", raw, err)
		}

		switch line.Type {
		case events.TypeCreateThread:
			threadID = line.ThreadID
			gray.Fprintf(w, "[thread %s]\n", line.ThreadID)

		case events.TypeText:
			endLine()
			fmt.Fprintln(w, line.Message)

		case events.TypeMessageDelta:
			fmt.Fprint(w, line.Text)
			midLine = true
			streamed[line.MessageID] = true

		case events.TypeThreadMessage:
			if line.Status == "completed" && line.Role == events.RoleAssistant && !streamed[line.MessageID] && line.Content != "" {
				endLine()
				fmt.Fprintln(w, line.Content)
			} else if verbose {
				endLine()
				gray.Fprintf(w, "[message %s %s]\n", line.MessageID, line.Status)
			}

		case events.TypeRunStep:
			if verbose {
				endLine()
				gray.Fprintf(w, "[step %s %s %s]\n", line.StepID, line.StepType, line.Status)
			}

		case events.TypeWebSearch:
			endLine()
			color.New(color.FgCyan).Fprintf(w, "searched the web: %s\n", line.Query)

		case events.TypeFileSearch:
			endLine()
			for _, res := range line.Results {
				color.New(color.FgCyan).Fprintf(w, "found in %s\n", res.Name)
			}

		case events.TypeCitations:
			endLine()
			for i, c := range line.Citations {
				title := c.Title
				if title == "" {
					title = c.URL
				}
				gray.Fprintf(w, "  [%d] %s <%s>\n", i+1, title, c.URL)
			}

		case events.TypeError:
			endLine()
			label := line.Scope
			if line.Code != "" {
				label += "/" + line.Code
			}
			red.Fprintf(w, "agent error (%s): %s\n", label, line.Message)

		case "":
			if line.Error != "" {
				endLine()
				return threadID, fmt.Errorf("%w: %s", ErrRelay, line.Error)
			}

		default:
			if verbose {
				endLine()
				gray.Fprintf(w, "[%s]\n", line.Type)
			}
		}
	}
	endLine()
	return threadID, scanner.Err()
}
