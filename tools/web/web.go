// Package web provides the web_search and web_fetch tools plus a
// relay.Fetcher backed by readability extraction.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/relaydev/relay"
	"github.com/relaydev/relay/ingest"
)

// maxFetchChars bounds extracted page text handed back to the model.
const maxFetchChars = 6000

// Client fetches URLs and extracts readable article text. Implements
// relay.Fetcher.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

var _ relay.Fetcher = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent overrides the request User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Client with a 20-second timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		userAgent:  "Mozilla/5.0 (compatible; RelayBot/1.0)",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch implements relay.Fetcher: download the page and extract its
// main text, falling back to tag stripping when readability fails.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &relay.ErrTransient{Op: "fetch " + rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &relay.ErrTransient{Op: "read " + rawURL, Err: err}
	}

	page := string(body)
	parsed, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(page), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.TextContent), nil
	}
	return ingest.StripHTML(page), nil
}

// Tool exposes web_search and web_fetch over a Searcher and Fetcher.
type Tool struct {
	searcher relay.Searcher
	fetcher  relay.Fetcher
}

var _ relay.Tool = (*Tool)(nil)

// New creates the web tool. A nil fetcher gets a default Client.
func New(searcher relay.Searcher, fetcher relay.Fetcher) *Tool {
	if fetcher == nil {
		fetcher = NewClient()
	}
	return &Tool{searcher: searcher, fetcher: fetcher}
}

func (t *Tool) Definitions() []relay.ToolDefinition {
	return []relay.ToolDefinition{
		{
			Name:        "web_search",
			Description: "Search the web. Returns a JSON list of {title, url, snippet}.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Natural language search query"}},"required":["query"]}`),
		},
		{
			Name:        "web_fetch",
			Description: "Fetch a URL and extract its main readable text.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (relay.ToolOutput, error) {
	var params struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return relay.ToolOutput{Err: "invalid args: " + err.Error()}, nil
		}
	}

	switch name {
	case "web_search":
		return t.search(ctx, params.Query)
	case "web_fetch":
		return t.fetch(ctx, params.URL)
	default:
		return relay.ToolOutput{Err: "unknown web tool: " + name}, nil
	}
}

func (t *Tool) search(ctx context.Context, query string) (relay.ToolOutput, error) {
	if t.searcher == nil {
		return relay.ToolOutput{Err: "web search is not configured"}, nil
	}
	if strings.TrimSpace(query) == "" {
		return relay.ToolOutput{Err: "query is required"}, nil
	}
	results, err := t.searcher.Search(ctx, query, 8)
	if err != nil {
		return relay.ToolOutput{Err: "search error: " + err.Error()}, nil
	}
	type hit struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hit{Title: r.Title, URL: r.URL, Snippet: r.Snip})
	}
	data, err := json.Marshal(hits)
	if err != nil {
		return relay.ToolOutput{Err: "encode results: " + err.Error()}, nil
	}
	return relay.ToolOutput{Content: string(data)}, nil
}

func (t *Tool) fetch(ctx context.Context, rawURL string) (relay.ToolOutput, error) {
	if strings.TrimSpace(rawURL) == "" {
		return relay.ToolOutput{Err: "url is required"}, nil
	}
	text, err := t.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return relay.ToolOutput{Err: "fetch error: " + err.Error()}, nil
	}
	if len(text) > maxFetchChars {
		text = text[:maxFetchChars] + "\n... (truncated)"
	}
	return relay.ToolOutput{Content: text}, nil
}
