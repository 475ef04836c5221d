package stage

import (
	"context"
	"sync"

	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/search"
)

// stubGenerator returns a fixed completion (or error) for every call. Unlike
// model.MockGenerator it does not key on the prompt, which keeps stage tests
// independent of exact prompt rendering.
type stubGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, &model.ProviderError{Provider: "stub", Err: g.err}
	}
	return &model.Response{Text: g.text}, nil
}

func (g *stubGenerator) Info() model.Info { return model.Info{Name: "stub", Provider: "stub"} }

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// countingSearcher wraps a Searcher and records every query it sees.
type countingSearcher struct {
	mu      sync.Mutex
	wrapped search.Searcher
	queries []string
}

func (c *countingSearcher) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return c.wrapped.Search(ctx, query, maxResults)
}

func (c *countingSearcher) seenQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queries))
	copy(out, c.queries)
	return out
}
