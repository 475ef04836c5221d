package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
)

// WriterOptions configure the Writer stage.
type WriterOptions struct {
	// Temperature for the report model call.
	Temperature float64
	// Logger for stage diagnostics.
	Logger logging.Logger
}

// Writer composes the final deliverable from the collected evidence notes:
// executive summary, markdown report, key takeaways and limitations. A model
// failure degrades to a deterministic evidence-dump report rather than losing
// the research; only an empty evidence base is fatal.
type Writer struct {
	generator model.Generator
	opts      WriterOptions
	logger    *logging.ResearchLogger
}

// NewWriter creates a Writer backed by the given text generator.
func NewWriter(generator model.Generator, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{
		Temperature: 0.4,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Writer{
		generator: generator,
		opts:      opts,
		logger:    logging.NewResearchLogger(opts.Logger),
	}
}

// Name implements core.Stage.
func (w *Writer) Name() string { return core.StageWrite }

type reportResponse struct {
	ExecutiveSummary string   `json:"executive_summary"`
	Report           string   `json:"report"`
	KeyTakeaways     []string `json:"key_takeaways"`
	Limitations      string   `json:"limitations"`
}

// Run implements core.Stage.
func (w *Writer) Run(ctx context.Context, state *core.ResearchState) core.StageOutcome {
	if !state.HasNotes() {
		state.RecordError(core.StageWrite, "", "no research notes available to write report")
		return core.FatalFailure("no research notes available to write report", nil)
	}

	prompt, err := renderWriterPrompt(state)
	if err != nil {
		return w.fallback(state, fmt.Sprintf("render report prompt: %v", err))
	}

	start := time.Now()
	resp, err := w.generator.Generate(ctx, model.Request{
		Instructions: writerSystemPrompt,
		Prompt:       prompt,
		Temperature:  w.opts.Temperature,
	})
	info := w.generator.Info()
	w.logger.LogModelCall(info.Provider, info.Name, tokenCount(resp), time.Since(start), err)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return core.FatalFailure("report writing cancelled", cerr)
		}
		return w.fallback(state, fmt.Sprintf("report model call failed: %v", err))
	}

	var decoded reportResponse
	if err := decodeModelJSON(resp.Text, &decoded); err != nil {
		return w.fallback(state, fmt.Sprintf("unparseable report response: %v", err))
	}
	if decoded.Report == "" {
		return w.fallback(state, "report response missing report body")
	}

	state.Report = decoded.Report
	state.ExecutiveSummary = decoded.ExecutiveSummary
	state.KeyTakeaways = decoded.KeyTakeaways
	state.Limitations = appendFailureLimitations(decoded.Limitations, state)
	w.logger.Info("report generated", "takeaways", len(state.KeyTakeaways))
	return core.Success()
}

// fallback writes a deterministic report assembled from the raw evidence
// notes and classifies the stage as degraded.
func (w *Writer) fallback(state *core.ResearchState, detail string) core.StageOutcome {
	w.logger.Warn("report synthesis degraded", "detail", detail)
	state.RecordError(core.StageWrite, "", detail)

	state.Report = fallbackReport(state)
	state.ExecutiveSummary = "Report generated with limited synthesis due to processing error."
	state.KeyTakeaways = []string{"See detailed findings in report"}
	state.Limitations = appendFailureLimitations(
		"Report generation encountered errors; synthesis may be incomplete.", state)
	return core.PartialFailure(detail)
}

// fallbackReport dumps the evidence bullets under numbered findings headings.
func fallbackReport(state *core.ResearchState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", state.Query)
	b.WriteString("## Overview\n\nThis report presents findings from web research on the query above.\n\n## Findings\n")
	for i, note := range state.Notes {
		fmt.Fprintf(&b, "\n### Finding %d\n\n", i+1)
		for _, bullet := range note.EvidenceBullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
	}
	b.WriteString("\n## Conclusion\n\nFurther analysis recommended based on the findings above.")
	return b.String()
}

// appendFailureLimitations makes sure sub-questions that failed during
// research are disclosed in the limitations section.
func appendFailureLimitations(limitations string, state *core.ResearchState) string {
	failed := state.FailedSubQuestions()
	if len(failed) == 0 {
		return limitations
	}

	questions := make([]string, 0, len(failed))
	for _, id := range failed {
		if sq, ok := state.SubQuestionByID(id); ok {
			questions = append(questions, fmt.Sprintf("%q", sq.Question))
		} else {
			questions = append(questions, id)
		}
	}
	disclosure := fmt.Sprintf("Research could not be completed for %s.", strings.Join(questions, ", "))
	if limitations == "" {
		return disclosure
	}
	return strings.TrimSpace(limitations) + " " + disclosure
}
