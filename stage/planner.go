package stage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
)

// PlannerOptions configure the Planner stage.
type PlannerOptions struct {
	// Temperature for the planning model call.
	Temperature float64
	// Logger for stage diagnostics.
	Logger logging.Logger
}

// Planner decomposes the user query into a prioritized research plan of 3-6
// sub-questions. A plan that cannot meet the lower bound is a fatal outcome:
// there is no useful degraded mode for a missing plan.
type Planner struct {
	generator model.Generator
	opts      PlannerOptions
	logger    *logging.ResearchLogger
}

// NewPlanner creates a Planner backed by the given text generator.
func NewPlanner(generator model.Generator, optFns ...func(o *PlannerOptions)) *Planner {
	opts := PlannerOptions{
		Temperature: 0.3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{
		generator: generator,
		opts:      opts,
		logger:    logging.NewResearchLogger(opts.Logger),
	}
}

// Name implements core.Stage.
func (p *Planner) Name() string { return core.StagePlan }

type planResponse struct {
	SubQuestions []core.SubQuestion `json:"sub_questions"`
}

// Run implements core.Stage. On success state.Plan holds between 3 and 6
// sub-questions sorted by priority.
func (p *Planner) Run(ctx context.Context, state *core.ResearchState) core.StageOutcome {
	prompt, err := renderPlannerPrompt(state.Query)
	if err != nil {
		return core.FatalFailure("render planning prompt", err)
	}

	start := time.Now()
	resp, err := p.generator.Generate(ctx, model.Request{
		Instructions: plannerSystemPrompt,
		Prompt:       prompt,
		Temperature:  p.opts.Temperature,
	})
	info := p.generator.Info()
	p.logger.LogModelCall(info.Provider, info.Name, tokenCount(resp), time.Since(start), err)
	if err != nil {
		state.RecordError(core.StagePlan, "", fmt.Sprintf("planning model call failed: %v", err))
		return core.FatalFailure("planning model call failed", err)
	}

	var decoded planResponse
	if err := decodeModelJSON(resp.Text, &decoded); err != nil {
		state.RecordError(core.StagePlan, "", fmt.Sprintf("unparseable plan response: %v", err))
		return core.FatalFailure("unparseable plan response", err)
	}

	plan := normalizePlan(decoded.SubQuestions)
	if len(plan) < core.MinSubQuestions {
		detail := fmt.Sprintf("plan has %d sub-questions, need at least %d", len(plan), core.MinSubQuestions)
		state.RecordError(core.StagePlan, "", detail)
		return core.FatalFailure(detail, nil)
	}
	if len(plan) > core.MaxSubQuestions {
		p.logger.Debug("clamping oversized plan", "got", len(plan), "max", core.MaxSubQuestions)
		plan = plan[:core.MaxSubQuestions]
	}

	state.Plan = plan
	p.logger.Info("research plan generated", "sub_questions", len(plan))
	return core.Success()
}

// normalizePlan drops empty entries, fills in missing ids, search queries and
// priorities, and sorts by priority (stable, so model order breaks ties).
func normalizePlan(in []core.SubQuestion) []core.SubQuestion {
	out := make([]core.SubQuestion, 0, len(in))
	for i, sq := range in {
		if sq.Question == "" {
			continue
		}
		if sq.ID == "" {
			sq.ID = fmt.Sprintf("sq%d", i+1)
		}
		if len(sq.SearchQueries) == 0 {
			sq.SearchQueries = []string{sq.Question}
		}
		if sq.Priority <= 0 {
			sq.Priority = i + 1
		}
		out = append(out, sq)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func tokenCount(resp *model.Response) int {
	if resp == nil || resp.Usage == nil {
		return 0
	}
	return resp.Usage.TotalTokens
}
