package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/thread"
)

// ErrEmptyQuery is returned by Run when the query is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// EventBufferSize sets channel buffering for the per-run event stream.
	EventBufferSize int
	// ThreadStore persists threads and turns. Defaults to in-memory.
	ThreadStore core.ThreadStore
	// Logger for orchestration diagnostics.
	Logger logging.Logger
}

// Orchestrator executes research turns: it resolves the thread, records the
// turn, runs the three stages in order and streams progress events. Public
// methods are safe for concurrent use; each Run gets its own event channel
// and cancel handle.
type Orchestrator struct {
	planner    core.Stage
	researcher core.Stage
	writer     core.Stage

	eventBufferSize int
	threads         core.ThreadStore
	logger          *logging.ResearchLogger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs an Orchestrator from the three stage executors.
func New(planner, researcher, writer core.Stage, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		EventBufferSize: 16,
		ThreadStore:     thread.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		planner:         planner,
		researcher:      researcher,
		writer:          writer,
		eventBufferSize: opts.EventBufferSize,
		threads:         opts.ThreadStore,
		logger:          logging.NewResearchLogger(opts.Logger),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// ThreadStore exposes the store backing this orchestrator for read paths
// (thread history endpoints).
func (o *Orchestrator) ThreadStore() core.ThreadStore { return o.threads }

// Run describes one started research turn. Events delivers the run's progress
// stream and is closed after exactly one terminal (done or error) event.
type Run struct {
	ThreadID string
	TurnID   string
	Events   <-chan core.Event
}

// Run starts an asynchronous research turn for query on the given thread. An
// empty threadID creates a fresh thread; a non-empty unknown one fails
// synchronously with UnknownThreadError before any turn is recorded.
func (o *Orchestrator) Run(ctx context.Context, query, threadID string) (*Run, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	th, isNew, err := o.threads.Resolve(threadID)
	if err != nil {
		return nil, err
	}
	if isNew {
		o.logger.Debug("created thread", "thread_id", th.ID)
	}

	turn := core.NewTurn(query)
	if err := o.threads.AppendTurn(th.ID, turn); err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.activeRuns[turn.ID] = cancel
	o.mu.Unlock()

	events := make(chan core.Event, o.eventBufferSize)

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.activeRuns, turn.ID)
			o.mu.Unlock()
			cancel()
			// closed last so consumers observing the closed channel see the
			// run already deregistered
			close(events)
		}()
		o.execute(runCtx, th.ID, turn, events)
	}()

	return &Run{ThreadID: th.ID, TurnID: turn.ID, Events: events}, nil
}

// Cancel aborts a running turn by id. The run still finalizes its turn and
// emits a terminal error event before its channel closes.
func (o *Orchestrator) Cancel(turnID string) error {
	o.mu.RLock()
	cancel, exists := o.activeRuns[turnID]
	o.mu.RUnlock()
	if !exists {
		return fmt.Errorf("run %s not found", turnID)
	}
	cancel()
	return nil
}

// ActiveRuns returns the number of turns currently executing.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// execute drives the stage sequence for one turn. Turn finalization happens
// before the terminal event is emitted, so the store is never left with a
// dangling pending turn even when nobody is draining the channel.
func (o *Orchestrator) execute(ctx context.Context, threadID string, turn *core.Turn, events chan<- core.Event) {
	if err := o.threads.FinishTurn(threadID, turn.ID, core.StatusRunning, nil, ""); err != nil {
		o.failTurn(ctx, threadID, turn.ID, nil, fmt.Sprintf("start turn: %v", err), events)
		return
	}

	state := core.NewResearchState(turn.Query)

	for _, stage := range []core.Stage{o.planner, o.researcher, o.writer} {
		if err := ctx.Err(); err != nil {
			o.failTurn(ctx, threadID, turn.ID, state, "research cancelled", events)
			return
		}

		o.emit(ctx, events, core.NewStageStartedEvent(stage.Name()))

		start := time.Now()
		outcome := stage.Run(ctx, state)
		o.logger.LogStageExecution(stage.Name(), outcome.Kind.String(), time.Since(start))

		o.emit(ctx, events, core.NewStageCompletedEvent(stage.Name(), outcome))

		if outcome.IsFatal() {
			detail := outcome.Detail
			if detail == "" && outcome.Err != nil {
				detail = outcome.Err.Error()
			}
			o.failTurn(ctx, threadID, turn.ID, state, fmt.Sprintf("%s stage failed: %s", stage.Name(), detail), events)
			return
		}
	}

	if err := o.threads.FinishTurn(threadID, turn.ID, core.StatusDone, state, ""); err != nil {
		o.logger.Error("finalize turn failed", "turn_id", turn.ID, "error", err.Error())
	}
	o.emit(ctx, events, core.NewDoneEvent(state))
}

// failTurn finalizes the turn as errored and emits the terminal error event.
func (o *Orchestrator) failTurn(ctx context.Context, threadID, turnID string, state *core.ResearchState, detail string, events chan<- core.Event) {
	if err := o.threads.FinishTurn(threadID, turnID, core.StatusError, state, detail); err != nil {
		o.logger.Error("finalize turn failed", "turn_id", turnID, "error", err.Error())
	}
	o.logger.Warn("turn failed", "turn_id", turnID, "detail", detail)
	o.emit(ctx, events, core.NewErrorEvent(detail))
}

// emit delivers ev unless the run context is done and the channel is full.
// The channel buffer covers every event a normal run can produce, so the
// terminal event is never silently dropped for an attached consumer.
func (o *Orchestrator) emit(ctx context.Context, events chan<- core.Event, ev core.Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
		select {
		case events <- ev:
		default:
		}
	}
}
