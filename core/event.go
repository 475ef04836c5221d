package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the closed set of workflow event variants. The
// orchestrator emits exactly these four kinds; the streaming gateway owns the
// mapping to wire event names. String tags exist only at the wire edge.
type EventKind int

const (
	// EventStageStarted marks the transition into a pipeline stage.
	EventStageStarted EventKind = iota
	// EventStageCompleted carries the classified outcome of a finished stage.
	EventStageCompleted
	// EventDone is the terminal success variant carrying the final state.
	EventDone
	// EventError is the terminal failure variant.
	EventError
)

// String returns a diagnostic label for the event kind (logs and tests only,
// never the wire representation).
func (k EventKind) String() string {
	switch k {
	case EventStageStarted:
		return "stage_started"
	case EventStageCompleted:
		return "stage_completed"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is an immutable workflow progress record. Exactly one Done or Error
// event terminates every run; Stage/Outcome/State/ErrorDetail are populated
// according to Kind. Treat emitted events as read-only.
type Event struct {
	ID        string
	Kind      EventKind
	Stage     string
	Outcome   *StageOutcome
	State     *ResearchState
	ErrDetail string
	Timestamp time.Time
}

func newEvent(kind EventKind) Event {
	return Event{ID: NewID(), Kind: kind, Timestamp: time.Now().UTC()}
}

// NewStageStartedEvent creates the event emitted before a stage runs.
func NewStageStartedEvent(stage string) Event {
	e := newEvent(EventStageStarted)
	e.Stage = stage
	return e
}

// NewStageCompletedEvent creates the event emitted after a stage returns,
// carrying its classified outcome.
func NewStageCompletedEvent(stage string, outcome StageOutcome) Event {
	e := newEvent(EventStageCompleted)
	e.Stage = stage
	e.Outcome = &outcome
	return e
}

// NewDoneEvent creates the terminal success event with the final state.
func NewDoneEvent(state *ResearchState) Event {
	e := newEvent(EventDone)
	e.State = state
	return e
}

// NewErrorEvent creates the terminal failure event.
func NewErrorEvent(detail string) Event {
	e := newEvent(EventError)
	e.ErrDetail = detail
	return e
}

// IsTerminal reports whether the event ends the run's event sequence.
func (e Event) IsTerminal() bool { return e.Kind == EventDone || e.Kind == EventError }

// NewID generates a new unique identifier for events, threads and turns.
func NewID() string { return uuid.NewString() }
