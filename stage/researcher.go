package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/search"
)

// ResearcherOptions configure the Researcher stage.
type ResearcherOptions struct {
	// MaxConcurrency bounds the number of sub-questions searched in parallel.
	MaxConcurrency int
	// MaxQueriesPerSubQuestion caps how many of a sub-question's search
	// queries are executed.
	MaxQueriesPerSubQuestion int
	// MaxResultsPerQuery caps results requested per search query.
	MaxResultsPerQuery int
	// MaxResultsForSynthesis caps how many unique results are fed to the
	// synthesis model call to stay under token limits.
	MaxResultsForSynthesis int
	// Temperature for the synthesis model call.
	Temperature float64
	// Logger for stage diagnostics.
	Logger logging.Logger
}

// Researcher executes the plan: for every sub-question it fans out web
// searches under a concurrency bound, then a single aggregator deduplicates
// sources, synthesizes evidence notes and applies all state mutations.
// Individual sub-question failures are absorbed; the stage is only fatal when
// every sub-question fails or the context is cancelled.
type Researcher struct {
	generator model.Generator
	searcher  search.Searcher
	opts      ResearcherOptions
	logger    *logging.ResearchLogger
}

// NewResearcher creates a Researcher from its two capabilities.
func NewResearcher(generator model.Generator, searcher search.Searcher, optFns ...func(o *ResearcherOptions)) *Researcher {
	opts := ResearcherOptions{
		MaxConcurrency:           4,
		MaxQueriesPerSubQuestion: 3,
		MaxResultsPerQuery:       3,
		MaxResultsForSynthesis:   10,
		Temperature:              0.2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Researcher{
		generator: generator,
		searcher:  searcher,
		opts:      opts,
		logger:    logging.NewResearchLogger(opts.Logger),
	}
}

// Name implements core.Stage.
func (r *Researcher) Name() string { return core.StageResearch }

// searchBatch is the raw output of one sub-question's search fan-out. Workers
// only produce batches; they never touch the shared state.
type searchBatch struct {
	results   []search.Result
	rawCount  int
	queryErrs []error
}

type synthesisResponse struct {
	EvidenceBullets []string `json:"evidence_bullets"`
	OpenQuestions   []string `json:"open_questions"`
}

// Run implements core.Stage. Notes, citations and errors are appended in
// priority order regardless of which search finishes first.
func (r *Researcher) Run(ctx context.Context, state *core.ResearchState) core.StageOutcome {
	if len(state.Plan) == 0 {
		return core.FatalFailure("no research plan available", nil)
	}

	ordered := make([]core.SubQuestion, len(state.Plan))
	copy(ordered, state.Plan)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	// Fan out the searches. Each worker writes only its own slot, so the
	// batches slice needs no lock.
	batches := make([]searchBatch, len(ordered))
	sem := semaphore.NewWeighted(int64(min(len(ordered), r.opts.MaxConcurrency)))
	var wg sync.WaitGroup
	for i, sq := range ordered {
		wg.Add(1)
		go func(i int, sq core.SubQuestion) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				batches[i] = searchBatch{queryErrs: []error{err}}
				return
			}
			defer sem.Release(1)
			batches[i] = r.searchSubQuestion(ctx, sq)
		}(i, sq)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return core.FatalFailure("research cancelled", err)
	}

	// Single aggregator: dedup, synthesize and mutate state sequentially in
	// priority order.
	failed := 0
	for i, sq := range ordered {
		if err := ctx.Err(); err != nil {
			return core.FatalFailure("research cancelled", err)
		}
		batch := batches[i]
		state.SourcesAnalyzed += batch.rawCount

		if len(batch.results) == 0 && len(batch.queryErrs) > 0 {
			failed++
			detail := fmt.Sprintf("research failed for sub-question %q: %v", sq.Question, batch.queryErrs[0])
			state.RecordError(core.StageResearch, sq.ID, detail)
			r.logger.Warn("sub-question research failed", "sub_question_id", sq.ID, "error", batch.queryErrs[0].Error())
			continue
		}

		unique := make([]search.Result, 0, len(batch.results))
		citations := make([]core.Citation, 0, len(batch.results))
		for _, result := range batch.results {
			c := core.Citation{Title: result.Title, URL: result.URL}
			if state.AddCitation(c) {
				unique = append(unique, result)
				citations = append(citations, c)
			}
		}

		bullets, openQuestions := r.synthesize(ctx, sq.Question, unique)
		state.AppendNote(core.Note{
			SubQuestionID:   sq.ID,
			EvidenceBullets: bullets,
			Sources:         citations,
			OpenQuestions:   openQuestions,
		})
		r.logger.Info("sub-question researched",
			"sub_question_id", sq.ID, "evidence_points", len(bullets), "sources", len(citations))
	}

	switch {
	case failed == len(ordered):
		return core.FatalFailure("all sub-questions failed", nil)
	case failed > 0:
		return core.PartialFailure(fmt.Sprintf("%d of %d sub-questions failed", failed, len(ordered)))
	default:
		return core.Success()
	}
}

// searchSubQuestion runs the sub-question's capped query list against the
// searcher and merges the raw results. Query failures are collected, not
// fatal: the sub-question only counts as failed when nothing came back.
func (r *Researcher) searchSubQuestion(ctx context.Context, sq core.SubQuestion) searchBatch {
	queries := sq.SearchQueries
	if len(queries) > r.opts.MaxQueriesPerSubQuestion {
		queries = queries[:r.opts.MaxQueriesPerSubQuestion]
	}

	var batch searchBatch
	for _, query := range queries {
		start := time.Now()
		results, err := r.searcher.Search(ctx, query, r.opts.MaxResultsPerQuery)
		r.logger.LogSearchCall(query, len(results), time.Since(start), err)
		if err != nil {
			batch.queryErrs = append(batch.queryErrs, err)
			continue
		}
		batch.results = append(batch.results, results...)
		batch.rawCount += len(results)
	}
	return batch
}

// synthesize turns unique search results into evidence bullets and open
// questions. A synthesis failure degrades to raw excerpts instead of failing
// the sub-question: the evidence was already collected.
func (r *Researcher) synthesize(ctx context.Context, subQuestion string, results []search.Result) ([]string, []string) {
	if len(results) == 0 {
		return []string{"No search results available for this question"},
			[]string{"Unable to find relevant information"}
	}

	capped := results
	if len(capped) > r.opts.MaxResultsForSynthesis {
		capped = capped[:r.opts.MaxResultsForSynthesis]
	}

	prompt, err := renderResearcherPrompt(subQuestion, capped)
	if err != nil {
		return excerptFallback(results), []string{"Unable to fully synthesize findings"}
	}

	start := time.Now()
	resp, err := r.generator.Generate(ctx, model.Request{
		Instructions: researcherSystemPrompt,
		Prompt:       prompt,
		Temperature:  r.opts.Temperature,
	})
	info := r.generator.Info()
	r.logger.LogModelCall(info.Provider, info.Name, tokenCount(resp), time.Since(start), err)
	if err != nil {
		r.logger.Warn("synthesis failed, using excerpt fallback", "error", err.Error())
		return excerptFallback(results), []string{"Unable to fully synthesize findings"}
	}

	var decoded synthesisResponse
	if err := decodeModelJSON(resp.Text, &decoded); err != nil {
		r.logger.Warn("unparseable synthesis response, using excerpt fallback", "error", err.Error())
		return excerptFallback(results), []string{"Unable to fully synthesize findings"}
	}
	if len(decoded.EvidenceBullets) == 0 {
		return excerptFallback(results), decoded.OpenQuestions
	}
	return decoded.EvidenceBullets, decoded.OpenQuestions
}

// excerptFallback derives evidence bullets from raw result excerpts when the
// model cannot synthesize. Excerpts are cut on rune boundaries so multi-byte
// content stays valid UTF-8.
func excerptFallback(results []search.Result) []string {
	const maxExcerpts = 6
	const excerptLen = 200

	bullets := make([]string, 0, maxExcerpts)
	for _, result := range results {
		if len(bullets) == maxExcerpts {
			break
		}
		content := result.Content
		if len(content) > excerptLen {
			cut := excerptLen
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "..."
		}
		bullets = append(bullets, content)
	}
	return bullets
}
