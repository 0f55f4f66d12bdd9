// ABOUTME: Extracts the search query from a web-search tool invocation URL.
// ABOUTME: Builds the web-search notice shown to chat clients.

// Package websearch turns web-search tool invocations into client notices.
package websearch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/2389/agent-relay/internal/events"
)

// SearchPageURL is the public results page linked from a notice.
const SearchPageURL = "https://www.bing.com/search"

// TitlePrefix precedes the query in a notice title.
const TitlePrefix = "AI Web Search: "

var (
	quotedQuery = regexp.MustCompile(`q="([^"]+)"`)
	paramQuery  = regexp.MustCompile(`[?&]q=([^&]*)`)
)

// ExtractQuery returns the query term of a tool request URL such as
//
//	https://api.bing.microsoft.com/v7.0/search?q="flu season 2025"
//
// A quoted q="..." wins; otherwise an unquoted ?q=/&q= parameter is taken up
// to the next '&'. When neither matches the input is returned unchanged.
func ExtractQuery(requestURL string) string {
	if m := quotedQuery.FindStringSubmatch(requestURL); m != nil {
		return m[1]
	}
	if m := paramQuery.FindStringSubmatch(requestURL); m != nil {
		return m[1]
	}
	return requestURL
}

// Notice builds the web-search event for a query. It returns false for an
// empty or whitespace-only query so the caller can skip the event.
func Notice(query string) (events.WebSearch, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return events.WebSearch{}, false
	}
	link := SearchPageURL + "?" + url.Values{"q": {q}}.Encode()
	return events.NewWebSearch(TitlePrefix+q, link, q), true
}

// NoticeFromRequestURL combines ExtractQuery and Notice.
func NoticeFromRequestURL(requestURL string) (events.WebSearch, bool) {
	return Notice(ExtractQuery(requestURL))
}
