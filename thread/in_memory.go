package thread

import (
	"sync"

	"github.com/hupe1980/deepresearch/core"
)

// InMemoryStore is a volatile ThreadStore implementation storing threads in a
// process-local map. It is safe for concurrent access. Threads live until the
// process exits; no durability is guaranteed across restarts.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*core.Thread
}

// NewInMemoryStore constructs an empty in-memory thread store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*core.Thread)}
}

// Resolve implements core.ThreadStore. An empty id creates a fresh thread
// with a generated id; a non-empty unknown id fails with UnknownThreadError.
func (s *InMemoryStore) Resolve(id string) (*core.Thread, bool, error) {
	if id == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		t := core.NewThread(core.NewID())
		s.threads[t.ID] = t
		return t, true, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, false, &core.UnknownThreadError{ThreadID: id}
	}
	return t, false, nil
}

// AppendTurn implements core.ThreadStore.
func (s *InMemoryStore) AppendTurn(threadID string, turn *core.Turn) error {
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	t.AddTurn(turn)
	return nil
}

// FinishTurn implements core.ThreadStore.
func (s *InMemoryStore) FinishTurn(threadID, turnID string, status core.TurnStatus, state *core.ResearchState, errDetail string) error {
	t, err := s.get(threadID)
	if err != nil {
		return err
	}
	return t.FinishTurn(turnID, status, state, errDetail)
}

// History implements core.ThreadStore returning a snapshot of the turn
// sequence in submission order.
func (s *InMemoryStore) History(threadID string) ([]*core.Turn, error) {
	t, err := s.get(threadID)
	if err != nil {
		return nil, err
	}
	return t.GetTurns(), nil
}

// Len implements core.ThreadStore.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *InMemoryStore) get(threadID string) (*core.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, &core.UnknownThreadError{ThreadID: threadID}
	}
	return t, nil
}
