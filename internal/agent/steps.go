// ABOUTME: Translation of run steps and message annotations into client events.
// ABOUTME: Shared by the polled and streamed sources so both report tools the same way.

package agent

import (
	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/events"
	"github.com/2389/agent-relay/internal/websearch"
)

// stepEvents returns the events for a step that reached a final state:
// a step error for failed steps, and web-search notices plus one
// file-search event for completed tool-call steps. Other steps yield nothing.
func stepEvents(step agentsvc.RunStep) []events.Event {
	switch {
	case step.Status == agentsvc.RunStatusFailed:
		code, message := "", "run step failed"
		if step.LastError != nil {
			code, message = step.LastError.Code, step.LastError.Message
		}
		return []events.Event{events.NewStepError(step.ID, code, message)}

	case step.Status == agentsvc.RunStatusCompleted && step.Type == agentsvc.StepTypeToolCalls:
		return toolCallEvents(step.StepDetails.ToolCalls)
	}
	return nil
}

func toolCallEvents(calls []agentsvc.ToolCall) []events.Event {
	var out []events.Event
	var files []events.FileSearchItem

	for _, call := range calls {
		if requestURL, ok := call.WebSearchRequestURL(); ok {
			if notice, ok := websearch.NoticeFromRequestURL(requestURL); ok {
				out = append(out, notice)
			}
			continue
		}
		if call.Type == agentsvc.ToolFileSearch && call.FileSearch != nil {
			for _, result := range call.FileSearch.Results {
				files = append(files, fileSearchItem(result))
			}
		}
	}

	if results, ok := events.NewFileSearchResults(files); ok {
		out = append(out, results)
	}
	return out
}

// fileSearchItem keeps the file name and the first excerpt.
func fileSearchItem(result agentsvc.FileSearchResult) events.FileSearchItem {
	item := events.FileSearchItem{Name: result.FileName}
	if len(result.Content) > 0 {
		item.Content = result.Content[0].Text
	}
	return item
}

// citationsEvent collects the URL citations of a message.
func citationsEvent(msg *agentsvc.Message) (events.Citations, bool) {
	annotations := msg.URLCitations()
	citations := make([]events.Citation, 0, len(annotations))
	for _, a := range annotations {
		citations = append(citations, events.Citation{
			Type:       events.CitationTypeURL,
			Title:      a.URLCitation.Title,
			URL:        a.URLCitation.URL,
			StartIndex: a.StartIndex,
			EndIndex:   a.EndIndex,
		})
	}
	return events.NewCitations(citations)
}
