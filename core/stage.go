package core

import "context"

// Stage names used in events, error records and logs.
const (
	StagePlan     = "plan"
	StageResearch = "research"
	StageWrite    = "write"
)

// Stage is the capability contract implemented by the Plan, Research and
// Write executors. Run reads from and appends to the supplied state; the
// fields a stage may touch are documented on ResearchState. Implementations
// must respect context cancellation and must never panic across the boundary:
// every failure is classified into the returned outcome.
type Stage interface {
	// Name returns the stage's stable identifier (one of the Stage* constants).
	Name() string

	// Run executes the stage against the state, mutating only the fields the
	// stage owns, and classifies the result. Partial failures are absorbed
	// into the state's error records; only a FatalFailure outcome stops the
	// pipeline.
	Run(ctx context.Context, state *ResearchState) StageOutcome
}

// OutcomeKind classifies how a stage finished.
type OutcomeKind int

const (
	// OutcomeSuccess means the stage completed with no recorded failures.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePartialFailure means the stage completed in degraded mode; the
	// details are recorded in the state's Errors sequence.
	OutcomePartialFailure
	// OutcomeFatalFailure means the stage cannot produce a usable result and
	// the workflow must abort.
	OutcomeFatalFailure
)

// String returns a diagnostic label for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePartialFailure:
		return "partial_failure"
	case OutcomeFatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// StageOutcome is the classified result of a stage execution. Err is only set
// for fatal outcomes and carries the underlying cause for wrapping/logging.
type StageOutcome struct {
	Kind   OutcomeKind
	Detail string
	Err    error
}

// Success returns a clean outcome.
func Success() StageOutcome { return StageOutcome{Kind: OutcomeSuccess} }

// PartialFailure returns a degraded-but-continuing outcome.
func PartialFailure(detail string) StageOutcome {
	return StageOutcome{Kind: OutcomePartialFailure, Detail: detail}
}

// FatalFailure returns an aborting outcome wrapping its cause.
func FatalFailure(detail string, err error) StageOutcome {
	return StageOutcome{Kind: OutcomeFatalFailure, Detail: detail, Err: err}
}

// IsFatal reports whether the outcome aborts the workflow.
func (o StageOutcome) IsFatal() bool { return o.Kind == OutcomeFatalFailure }
