package testutil

import (
	"fmt"

	"github.com/hupe1980/deepresearch/core"
)

// StateBuilder helps construct research states with fluent chaining for tests.
// Example:
//
//	state := NewStateBuilder("query").Plan(3).Note("sq1", "finding").Build()
type StateBuilder struct {
	state *core.ResearchState
}

// NewStateBuilder creates a new builder for a state with the given query.
// Use chainable methods (Plan, Note, Citation, Report) then call Build.
func NewStateBuilder(query string) *StateBuilder {
	return &StateBuilder{state: core.NewResearchState(query)}
}

// Plan populates n generated sub-questions sq1..sqN with ascending priorities
// (chainable).
func (b *StateBuilder) Plan(n int) *StateBuilder {
	for i := 1; i <= n; i++ {
		b.state.Plan = append(b.state.Plan, core.SubQuestion{
			ID:            fmt.Sprintf("sq%d", i),
			Question:      fmt.Sprintf("Sub-question %d?", i),
			SearchQueries: []string{fmt.Sprintf("query %d", i)},
			Priority:      i,
		})
	}
	return b
}

// SubQuestion appends an explicit plan entry (chainable).
func (b *StateBuilder) SubQuestion(sq core.SubQuestion) *StateBuilder {
	b.state.Plan = append(b.state.Plan, sq)
	return b
}

// Note appends an evidence note for the given sub-question id (chainable).
func (b *StateBuilder) Note(subQuestionID string, bullets ...string) *StateBuilder {
	b.state.AppendNote(core.Note{SubQuestionID: subQuestionID, EvidenceBullets: bullets})
	return b
}

// Citation adds a citation, applying normalized-URL dedup (chainable).
func (b *StateBuilder) Citation(title, url string) *StateBuilder {
	b.state.AddCitation(core.Citation{Title: title, URL: url})
	return b
}

// SourcesAnalyzed sets the raw source counter (chainable).
func (b *StateBuilder) SourcesAnalyzed(n int) *StateBuilder {
	b.state.SourcesAnalyzed = n
	return b
}

// Report sets the write-stage outputs (chainable).
func (b *StateBuilder) Report(report, summary string, takeaways ...string) *StateBuilder {
	b.state.Report = report
	b.state.ExecutiveSummary = summary
	b.state.KeyTakeaways = takeaways
	return b
}

// Limitations sets the limitations section (chainable).
func (b *StateBuilder) Limitations(text string) *StateBuilder {
	b.state.Limitations = text
	return b
}

// Error records a stage error (chainable).
func (b *StateBuilder) Error(stage, subQuestionID, detail string) *StateBuilder {
	b.state.RecordError(stage, subQuestionID, detail)
	return b
}

// Build returns the assembled *core.ResearchState.
func (b *StateBuilder) Build() *core.ResearchState {
	return b.state
}
