// Package deepresearch provides a high-level façade over the research
// workflow: plan decomposition, bounded-concurrency web research and report
// writing, with thread/turn persistence and progress event streaming. Most
// applications interact with this package by:
//  1. Creating a DeepResearch via New() with a text generator and searcher
//  2. Starting turns asynchronously (Research) or synchronously (ResearchSync)
//  3. Serving the workflow over HTTP via the server package
//
// The façade delegates orchestration to workflow.Orchestrator while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments supply real provider clients and a
// structured logger.
package deepresearch

import (
	"context"
	"fmt"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/search"
	"github.com/hupe1980/deepresearch/search/tavily"
	"github.com/hupe1980/deepresearch/stage"
	"github.com/hupe1980/deepresearch/thread"
	"github.com/hupe1980/deepresearch/workflow"
)

// Options configures the DeepResearch instance.
type Options struct {
	// Generator drives all three stages' text generation. Defaults to the
	// mock generator, which is only useful for wiring tests.
	Generator model.Generator

	// Searcher backs the research stage. Defaults to the Tavily client in
	// stub mode.
	Searcher search.Searcher

	// ThreadStore persists threads and turns. Defaults to in-memory.
	ThreadStore core.ThreadStore

	// MaxConcurrency bounds parallel sub-question research.
	MaxConcurrency int

	// MaxQueriesPerSubQuestion caps searches per sub-question.
	MaxQueriesPerSubQuestion int

	// MaxResultsPerQuery caps results requested per search query.
	MaxResultsPerQuery int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// DeepResearch is the high-level façade aggregating the stage executors and
// the orchestrator.
type DeepResearch struct {
	opts Options
	orch *workflow.Orchestrator
}

// New creates a DeepResearch instance with optional overrides. Any unset
// dependency is initialized with a local default.
func New(optFns ...func(o *Options)) *DeepResearch {
	opts := Options{
		Generator:                model.NewMockGenerator(),
		Searcher:                 tavily.NewClient(""),
		ThreadStore:              thread.NewInMemoryStore(),
		MaxConcurrency:           4,
		MaxQueriesPerSubQuestion: 3,
		MaxResultsPerQuery:       3,
		Logger:                   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	planner := stage.NewPlanner(opts.Generator, func(o *stage.PlannerOptions) {
		o.Logger = opts.Logger
	})
	researcher := stage.NewResearcher(opts.Generator, opts.Searcher, func(o *stage.ResearcherOptions) {
		o.MaxConcurrency = opts.MaxConcurrency
		o.MaxQueriesPerSubQuestion = opts.MaxQueriesPerSubQuestion
		o.MaxResultsPerQuery = opts.MaxResultsPerQuery
		o.Logger = opts.Logger
	})
	writer := stage.NewWriter(opts.Generator, func(o *stage.WriterOptions) {
		o.Logger = opts.Logger
	})

	orch := workflow.New(planner, researcher, writer, func(o *workflow.Options) {
		o.ThreadStore = opts.ThreadStore
		o.Logger = opts.Logger
	})

	return &DeepResearch{opts: opts, orch: orch}
}

// Orchestrator exposes the underlying orchestrator (for serving over HTTP).
func (d *DeepResearch) Orchestrator() *workflow.Orchestrator { return d.orch }

// ThreadStore exposes the thread store backing this instance.
func (d *DeepResearch) ThreadStore() core.ThreadStore { return d.opts.ThreadStore }

// Research starts an asynchronous research turn. An empty threadID creates a
// fresh thread.
func (d *DeepResearch) Research(ctx context.Context, query, threadID string) (*workflow.Run, error) {
	return d.orch.Run(ctx, query, threadID)
}

// ResearchSync is a synchronous helper that drains the run's events and
// returns the final state. A terminal error event is converted to an error.
func (d *DeepResearch) ResearchSync(ctx context.Context, query, threadID string) (*core.ResearchState, error) {
	run, err := d.orch.Run(ctx, query, threadID)
	if err != nil {
		return nil, err
	}

	var terminal *core.Event
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-run.Events:
			if !ok {
				if terminal == nil {
					return nil, fmt.Errorf("run ended without terminal event")
				}
				if terminal.Kind == core.EventError {
					return nil, fmt.Errorf("research failed: %s", terminal.ErrDetail)
				}
				return terminal.State, nil
			}
			if ev.IsTerminal() {
				terminal = &ev
			}
		}
	}
}
