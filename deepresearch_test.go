package deepresearch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/search"
)

// pipelineGenerator answers each stage's prompt with a canned completion,
// dispatching on the system prompt so call order does not matter.
type pipelineGenerator struct{}

func (pipelineGenerator) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case strings.Contains(req.Instructions, "research planning expert"):
		return &model.Response{Text: `{
			"sub_questions": [
				{"id": "sq1", "question": "What is the market size?", "search_queries": ["market size"], "priority": 1},
				{"id": "sq2", "question": "Who are the competitors?", "search_queries": ["competitors"], "priority": 2},
				{"id": "sq3", "question": "What are the risks?", "search_queries": ["risks"], "priority": 3}
			]
		}`}, nil
	case strings.Contains(req.Instructions, "research analyst"):
		return &model.Response{Text: `{
			"evidence_bullets": ["Key finding."],
			"open_questions": []
		}`}, nil
	default:
		return &model.Response{Text: `{
			"executive_summary": "Summary.",
			"report": "# Report\n\nBody.",
			"key_takeaways": ["Takeaway."],
			"limitations": "None noted."
		}`}, nil
	}
}

func (pipelineGenerator) Info() model.Info { return model.Info{Name: "pipeline", Provider: "mock"} }

func newTestSearcher() *search.MockSearcher {
	searcher := search.NewMockSearcher()
	searcher.AddResults("market size",
		search.Result{Title: "Market", URL: "https://example.com/market", Content: "Market data."})
	searcher.AddResults("competitors",
		search.Result{Title: "Competitors", URL: "https://example.com/competitors", Content: "Competitor data."})
	searcher.AddResults("risks",
		search.Result{Title: "Risks", URL: "https://example.com/risks", Content: "Risk data."})
	return searcher
}

func TestDeepResearch_ResearchSync(t *testing.T) {
	dr := New(func(o *Options) {
		o.Generator = pipelineGenerator{}
		o.Searcher = newTestSearcher()
	})

	state, err := dr.ResearchSync(context.Background(), "industry outlook", "")
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Len(t, state.Plan, 3)
	assert.Len(t, state.Notes, 3)
	assert.Equal(t, "# Report\n\nBody.", state.Report)
	assert.Equal(t, "Summary.", state.ExecutiveSummary)
	assert.Equal(t, 1, dr.ThreadStore().Len())
}

func TestDeepResearch_ResearchAsync(t *testing.T) {
	dr := New(func(o *Options) {
		o.Generator = pipelineGenerator{}
		o.Searcher = newTestSearcher()
	})

	run, err := dr.Research(context.Background(), "industry outlook", "")
	require.NoError(t, err)

	var kinds []core.EventKind
	for ev := range run.Events {
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, core.EventDone, kinds[len(kinds)-1])
}

func TestDeepResearch_FailureSurfacesAsError(t *testing.T) {
	gen := model.NewMockGenerator()
	gen.FailWith(errors.New("provider down"))

	dr := New(func(o *Options) { o.Generator = gen })

	_, err := dr.ResearchSync(context.Background(), "query", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "research failed")
}

func TestDeepResearch_ThreadContinuity(t *testing.T) {
	dr := New(func(o *Options) {
		o.Generator = pipelineGenerator{}
		o.Searcher = newTestSearcher()
	})

	run, err := dr.Research(context.Background(), "first", "")
	require.NoError(t, err)
	for range run.Events {
	}

	_, err = dr.ResearchSync(context.Background(), "second", run.ThreadID)
	require.NoError(t, err)

	turns, err := dr.ThreadStore().History(run.ThreadID)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}
