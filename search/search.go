package search

import (
	"context"
	"errors"
	"fmt"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher is the capability contract for web search backends.
// Implementations must respect context cancellation and wrap backend
// failures in a SearchError.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearchError wraps a failure from an external search backend, tagged with
// the query that triggered it.
type SearchError struct {
	Query string
	Err   error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("search failed for %q: %v", e.Query, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *SearchError) Unwrap() error { return e.Err }

// IsSearchError reports whether err wraps a SearchError.
func IsSearchError(err error) bool {
	var se *SearchError
	return errors.As(err, &se)
}

// MockSearcher is an in-memory Searcher for tests. Results are keyed by
// query; queries registered with FailQuery return a SearchError instead.
type MockSearcher struct {
	results map[string][]Result
	failing map[string]error
}

// NewMockSearcher constructs an empty MockSearcher.
func NewMockSearcher() *MockSearcher {
	return &MockSearcher{
		results: make(map[string][]Result),
		failing: make(map[string]error),
	}
}

// AddResults registers canned results for a query.
func (m *MockSearcher) AddResults(query string, results ...Result) {
	m.results[query] = append(m.results[query], results...)
}

// FailQuery makes the given query fail with err.
func (m *MockSearcher) FailQuery(query string, err error) { m.failing[query] = err }

// Search implements Searcher.
func (m *MockSearcher) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.failing[query]; ok {
		return nil, &SearchError{Query: query, Err: err}
	}
	results := m.results[query]
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	out := make([]Result, len(results))
	copy(out, results)
	return out, nil
}
