// ABOUTME: Local stand-in for the hosted agent service, for development and E2E runs.
// ABOUTME: Usage: fake-agent-service [-addr localhost:9100] [-agent asst_local] [-api-key KEY]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/agentsvc/agentsvctest"
)

func main() {
	addr := flag.String("addr", "localhost:9100", "listen address")
	agentID := flag.String("agent", "asst_local", "agent ID to register")
	agentName := flag.String("name", "Echo Agent", "agent display name")
	apiKey := flag.String("api-key", "", "required api-key header (empty accepts any)")
	polls := flag.Int("polls", 2, "GET run calls before a polled run completes")
	flag.Parse()

	if err := run(*addr, *agentID, *agentName, *apiKey, *polls); err != nil {
		log.Fatal(err)
	}
}

func run(addr, agentID, agentName, apiKey string, polls int) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []agentsvctest.Option{
		agentsvctest.WithAgent(agentID, agentName),
		agentsvctest.WithReply(scriptedReply),
		agentsvctest.WithPollsBeforeCompletion(polls),
	}
	if apiKey != "" {
		opts = append(opts, agentsvctest.WithAPIKey(apiKey))
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           agentsvctest.New(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("fake agent service listening on http://%s (agent %s)\n", addr, agentID)
	fmt.Println("messages starting with \"search:\" trigger a web search, \"files:\" a file search, \"fail\" a failed run")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// scriptedReply echoes the message, with a few prefixes that exercise the
// relay's tool and failure paths.
func scriptedReply(msg string) agentsvctest.Reply {
	lower := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.HasPrefix(lower, "fail"):
		return agentsvctest.Reply{Fail: &agentsvc.LastError{Code: "server_error", Message: "the agent gave up"}}

	case strings.HasPrefix(lower, "search:"):
		query := strings.TrimSpace(msg[len("search:"):])
		requestURL := "https://api.bing.microsoft.com/v7.0/search?q=\"" + query + "\""
		return agentsvctest.Reply{
			Steps: []agentsvc.RunStep{{
				Type: agentsvc.StepTypeToolCalls,
				StepDetails: agentsvc.StepDetails{
					Type: agentsvc.StepTypeToolCalls,
					ToolCalls: []agentsvc.ToolCall{{
						ID:            "call_web",
						Type:          agentsvc.ToolBingGrounding,
						BingGrounding: map[string]string{"requesturl": requestURL},
					}},
				},
			}},
			Texts: []string{"Here is what the web says about " + query + " 【3:0†source】"},
			Citations: []agentsvc.Annotation{{
				Type:        agentsvc.AnnotationURLCitation,
				Text:        "【3:0†source】",
				URLCitation: &agentsvc.URLCitation{URL: "https://example.com/?q=" + url.QueryEscape(query), Title: "Example result"},
			}},
			Usage: &agentsvc.Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
		}

	case strings.HasPrefix(lower, "files:"):
		return agentsvctest.Reply{
			Steps: []agentsvc.RunStep{{
				Type: agentsvc.StepTypeToolCalls,
				StepDetails: agentsvc.StepDetails{
					Type: agentsvc.StepTypeToolCalls,
					ToolCalls: []agentsvc.ToolCall{{
						ID:   "call_file",
						Type: agentsvc.ToolFileSearch,
						FileSearch: &agentsvc.FileSearchCall{Results: []agentsvc.FileSearchResult{{
							FileID:   "file_1",
							FileName: "handbook.pdf",
							Score:    0.92,
							Content:  []agentsvc.FileSearchContent{{Type: "text", Text: "Vacation requests go through the portal."}},
						}}},
					}},
				},
			}},
			Texts: []string{"According to the handbook, vacation requests go through the portal."},
		}
	}
	return agentsvctest.EchoReply(msg)
}
