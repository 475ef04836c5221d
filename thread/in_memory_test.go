package thread

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/deepresearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Resolve_CreatesNewThread(t *testing.T) {
	store := NewInMemoryStore()

	th, isNew, err := store.Resolve("")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEmpty(t, th.ID)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_Resolve_ReturnsExisting(t *testing.T) {
	store := NewInMemoryStore()
	created, _, err := store.Resolve("")
	require.NoError(t, err)

	resolved, isNew, err := store.Resolve(created.ID)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, resolved.ID)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStore_Resolve_UnknownID(t *testing.T) {
	store := NewInMemoryStore()

	_, _, err := store.Resolve("no-such-thread")
	require.Error(t, err)
	assert.True(t, core.IsUnknownThread(err))
	assert.Equal(t, 0, store.Len(), "unknown id must not create a thread")
}

func TestInMemoryStore_AppendTurn_And_History(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)

	first := core.NewTurn("first query")
	second := core.NewTurn("second query")
	require.NoError(t, store.AppendTurn(th.ID, first))
	require.NoError(t, store.AppendTurn(th.ID, second))

	history, err := store.History(th.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first query", history[0].Query)
	assert.Equal(t, "second query", history[1].Query)
}

func TestInMemoryStore_AppendTurn_UnknownThread(t *testing.T) {
	store := NewInMemoryStore()
	err := store.AppendTurn("gone", core.NewTurn("q"))
	assert.True(t, core.IsUnknownThread(err))
}

func TestInMemoryStore_FinishTurn(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)

	turn := core.NewTurn("q")
	require.NoError(t, store.AppendTurn(th.ID, turn))

	state := core.NewResearchState("q")
	require.NoError(t, store.FinishTurn(th.ID, turn.ID, core.StatusDone, state, ""))

	history, err := store.History(th.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDone, history[0].Status)
	require.NotNil(t, history[0].State)
	assert.NotSame(t, state, history[0].State, "history carries a snapshot, not the live state")
	assert.Equal(t, "q", history[0].State.Query)
}

func TestInMemoryStore_FinishTurn_IsFinal(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)

	turn := core.NewTurn("q")
	require.NoError(t, store.AppendTurn(th.ID, turn))
	require.NoError(t, store.FinishTurn(th.ID, turn.ID, core.StatusError, nil, "cancelled"))

	err = store.FinishTurn(th.ID, turn.ID, core.StatusDone, nil, "")
	assert.Error(t, err, "finalized turns are immutable")
}

func TestInMemoryStore_History_Snapshot(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(th.ID, core.NewTurn("q")))

	history, err := store.History(th.ID)
	require.NoError(t, err)
	history[0] = nil // mutating the snapshot must not affect the store

	again, err := store.History(th.ID)
	require.NoError(t, err)
	require.NotNil(t, again[0])
	assert.Equal(t, "q", again[0].Query)
}

func TestInMemoryStore_History_ClonesTurns(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)

	turn := core.NewTurn("q")
	require.NoError(t, store.AppendTurn(th.ID, turn))
	state := core.NewResearchState("q")
	state.Report = "# Report"
	require.NoError(t, store.FinishTurn(th.ID, turn.ID, core.StatusDone, state, ""))

	history, err := store.History(th.ID)
	require.NoError(t, err)
	history[0].Status = core.StatusError
	history[0].State.Report = "tampered"

	again, err := store.History(th.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDone, again[0].Status)
	assert.Equal(t, "# Report", again[0].State.Report)
}

func TestInMemoryStore_History_ConcurrentWithFinalize(t *testing.T) {
	store := NewInMemoryStore()
	th, _, err := store.Resolve("")
	require.NoError(t, err)

	// a writer finalizing turns while a reader serializes history snapshots;
	// go test -race flags any sharing between the two
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			turn := core.NewTurn("q")
			if store.AppendTurn(th.ID, turn) != nil {
				return
			}
			state := core.NewResearchState("q")
			state.Report = "# Report"
			state.AddCitation(core.Citation{Title: "Source", URL: "https://example.com/a"})
			if store.FinishTurn(th.ID, turn.ID, core.StatusDone, state, "") != nil {
				return
			}
		}
	}()

	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		history, err := store.History(th.ID)
		require.NoError(t, err)
		_, err = json.Marshal(history)
		require.NoError(t, err)
	}
}
