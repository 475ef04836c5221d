package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// TurnStatus tracks a Turn through its lifecycle. A Turn is immutable once it
// reaches StatusDone or StatusError.
type TurnStatus string

const (
	// StatusPending means the Turn is recorded but execution has not started.
	StatusPending TurnStatus = "pending"
	// StatusRunning means the pipeline is executing.
	StatusRunning TurnStatus = "running"
	// StatusDone means the Turn completed with a final report.
	StatusDone TurnStatus = "done"
	// StatusError means the Turn failed or was cancelled.
	StatusError TurnStatus = "error"
)

// Terminal reports whether the status is a final one.
func (s TurnStatus) Terminal() bool { return s == StatusDone || s == StatusError }

// Turn is one query/response cycle within a Thread: the originating query,
// the ResearchState it produced, and the outcome. Turns are appended to their
// Thread in submission order and never deleted.
type Turn struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	Status    TurnStatus     `json:"status"`
	State     *ResearchState `json:"state,omitempty"`
	ErrDetail string         `json:"error,omitempty"`
	Created   time.Time      `json:"created"`
	Updated   time.Time      `json:"updated"`
}

// NewTurn creates a pending Turn for the given query.
func NewTurn(query string) *Turn {
	now := time.Now().UTC()
	return &Turn{ID: NewID(), Query: query, Status: StatusPending, Created: now, Updated: now}
}

// Clone returns a deep copy of the turn, including its state. Readers get
// clones so a finalization racing with a history read never shares memory.
func (t *Turn) Clone() *Turn {
	c := *t
	c.State = t.State.Clone()
	return &c
}

// Thread is a named ordered sequence of Turns sharing conversational context.
// It is safe for concurrent access. Threads are owned exclusively by their
// ThreadStore; stages never touch Thread data directly.
type Thread struct {
	ID      string    `json:"id"`
	Turns   []*Turn   `json:"turns"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	mu      sync.RWMutex
}

// NewThread creates an empty thread with the given id.
func NewThread(id string) *Thread {
	now := time.Now().UTC()
	return &Thread{ID: id, Created: now, Updated: now}
}

// AddTurn appends a turn to the thread updating the Updated timestamp.
func (t *Thread) AddTurn(turn *Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Turns = append(t.Turns, turn)
	t.Updated = time.Now().UTC()
}

// GetTurns returns a deep-copied snapshot of the turn sequence in submission
// order. The clones are taken under the read lock, so the snapshot is safe to
// read and serialize while FinishTurn keeps mutating the live turns.
func (t *Thread) GetTurns() []*Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	turns := make([]*Turn, len(t.Turns))
	for i, turn := range t.Turns {
		turns[i] = turn.Clone()
	}
	return turns
}

// Len returns the number of turns recorded on the thread.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Turns)
}

// findTurn returns the turn with the given id; caller must hold the lock.
func (t *Thread) findTurn(turnID string) *Turn {
	for _, turn := range t.Turns {
		if turn.ID == turnID {
			return turn
		}
	}
	return nil
}

// FinishTurn finalizes a pending/running turn in place. It fails if the turn
// is unknown or already terminal (done/error turns are immutable). Callers
// outside a ThreadStore implementation should go through the store instead.
func (t *Thread) FinishTurn(turnID string, status TurnStatus, state *ResearchState, errDetail string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	turn := t.findTurn(turnID)
	if turn == nil {
		return fmt.Errorf("turn %s not found in thread %s", turnID, t.ID)
	}
	if turn.Status.Terminal() {
		return fmt.Errorf("turn %s already finalized as %s", turnID, turn.Status)
	}
	turn.Status = status
	turn.State = state
	turn.ErrDetail = errDetail
	turn.Updated = time.Now().UTC()
	t.Updated = turn.Updated
	return nil
}

// UnknownThreadError reports a thread id that the store does not know. It is
// user-correctable: the caller supplied a bad or expired id.
type UnknownThreadError struct {
	ThreadID string
}

// Error implements the error interface.
func (e *UnknownThreadError) Error() string {
	return fmt.Sprintf("unknown thread: %s", e.ThreadID)
}

// IsUnknownThread reports whether err wraps an UnknownThreadError.
func IsUnknownThread(err error) bool {
	var ute *UnknownThreadError
	return errors.As(err, &ute)
}

// ThreadStore persists threads and their turn history for the lifetime of the
// process. It is the only mutation path for Thread data.
type ThreadStore interface {
	// Resolve returns the thread for id, or creates a fresh one when id is
	// empty. A non-empty unknown id fails with UnknownThreadError rather than
	// silently creating a new thread.
	Resolve(id string) (thread *Thread, isNew bool, err error)

	// AppendTurn appends a turn to an existing thread.
	AppendTurn(threadID string, turn *Turn) error

	// FinishTurn finalizes a previously appended turn with a terminal status.
	// Turns are immutable once finalized.
	FinishTurn(threadID, turnID string, status TurnStatus, state *ResearchState, errDetail string) error

	// History returns a read-only snapshot of the thread's turns in
	// submission order.
	History(threadID string) ([]*Turn, error)

	// Len returns the number of threads currently held by the store.
	Len() int
}
