// Package tavily implements search.Searcher against the Tavily web search
// REST API. Without an API key the client serves deterministic stub results
// so the pipeline stays runnable in development environments.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/deepresearch/search"
)

const defaultBaseURL = "https://api.tavily.com"

// Options configure the Tavily client.
type Options struct {
	// BaseURL overrides the API endpoint (tests point this at a httptest server).
	BaseURL string
	// SearchDepth is "basic" or "advanced".
	SearchDepth string
	// HTTPClient overrides the default client (timeout 30s).
	HTTPClient *http.Client
}

// Client calls the Tavily /search endpoint. With an empty API key the client
// operates in stub mode.
type Client struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
}

// NewClient constructs a Tavily-backed Searcher. An empty apiKey enables
// stub mode rather than failing, mirroring local development ergonomics.
func NewClient(apiKey string, optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:     defaultBaseURL,
		SearchDepth: "advanced",
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		depth:      opts.SearchDepth,
		httpClient: opts.HTTPClient,
	}
}

// StubMode reports whether the client serves stub results (no API key).
func (c *Client) StubMode() bool { return c.apiKey == "" }

type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements search.Searcher.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if c.StubMode() {
		return stubResults(query, maxResults), nil
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: c.depth,
	})
	if err != nil {
		return nil, &search.SearchError{Query: query, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, &search.SearchError{Query: query, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &search.SearchError{Query: query, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &search.SearchError{
			Query: query,
			Err:   fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &search.SearchError{Query: query, Err: fmt.Errorf("decode response: %w", err)}
	}

	results := make([]search.Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.URL == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		results = append(results, search.Result{Title: title, URL: r.URL, Content: r.Content})
	}
	return results, nil
}

// stubResults returns deterministic placeholder hits derived from the query
// so downstream synthesis has something realistic to chew on.
func stubResults(query string, maxResults int) []search.Result {
	slug := truncate(strings.ReplaceAll(query, " ", "-"), 30)
	all := []search.Result{
		{
			Title:   fmt.Sprintf("Research Article: %s", truncate(query, 50)),
			URL:     fmt.Sprintf("https://example.com/research/%s", slug),
			Content: fmt.Sprintf("This article discusses %s. Key findings include multiple perspectives on the topic, recent developments, and expert analysis.", query),
		},
		{
			Title:   fmt.Sprintf("Expert Analysis on %s", truncate(query, 40)),
			URL:     fmt.Sprintf("https://example.com/analysis/%s", slug),
			Content: fmt.Sprintf("Industry experts provide insights into %s. The analysis covers current trends, challenges, and opportunities.", query),
		},
		{
			Title:   fmt.Sprintf("Market Report: %s", truncate(query, 45)),
			URL:     fmt.Sprintf("https://example.com/market-report/%s", slug),
			Content: fmt.Sprintf("Comprehensive market analysis regarding %s, covering competitive landscape, regulatory considerations, and growth projections.", query),
		},
		{
			Title:   fmt.Sprintf("Case Study: %s", truncate(query, 50)),
			URL:     fmt.Sprintf("https://example.com/case-study/%s", slug),
			Content: fmt.Sprintf("Real-world case study examining %s with practical examples, lessons learned, and best practices.", query),
		},
		{
			Title:   fmt.Sprintf("Technical Overview: %s", truncate(query, 45)),
			URL:     fmt.Sprintf("https://example.com/technical/%s", slug),
			Content: fmt.Sprintf("Technical documentation and overview of %s, covering implementation requirements and practical applications.", query),
		},
	}
	if maxResults < len(all) {
		return all[:maxResults]
	}
	return all
}

// truncate cuts s to at most n bytes on a rune boundary so multi-byte
// queries never produce invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
