package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/thread"
	"github.com/hupe1980/deepresearch/workflow"
)

type stubStage struct {
	name string
	run  func(ctx context.Context, state *core.ResearchState) core.StageOutcome
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Run(ctx context.Context, state *core.ResearchState) core.StageOutcome {
	if s.run != nil {
		return s.run(ctx, state)
	}
	return core.Success()
}

func newTestServer(t *testing.T) (*httptest.Server, core.ThreadStore) {
	t.Helper()

	planner := &stubStage{name: core.StagePlan, run: func(_ context.Context, state *core.ResearchState) core.StageOutcome {
		state.Plan = []core.SubQuestion{
			{ID: "sq1", Question: "A?", Priority: 1},
			{ID: "sq2", Question: "B?", Priority: 2},
			{ID: "sq3", Question: "C?", Priority: 3},
		}
		return core.Success()
	}}
	researcher := &stubStage{name: core.StageResearch, run: func(_ context.Context, state *core.ResearchState) core.StageOutcome {
		state.AppendNote(core.Note{SubQuestionID: "sq1", EvidenceBullets: []string{"evidence"}})
		state.AddCitation(core.Citation{Title: "Source", URL: "https://example.com/source"})
		state.SourcesAnalyzed = 3
		return core.Success()
	}}
	writer := &stubStage{name: core.StageWrite, run: func(_ context.Context, state *core.ResearchState) core.StageOutcome {
		state.Report = "# Report\n\nFindings."
		state.ExecutiveSummary = "Summary"
		return core.Success()
	}}

	store := thread.NewInMemoryStore()
	orch := workflow.New(planner, researcher, writer, func(o *workflow.Options) { o.ThreadStore = store })

	srv := httptest.NewServer(New(orch).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

type sseFrame struct {
	name string
	data string
}

func postChat(t *testing.T, srv *httptest.Server, body string) (int, []sseFrame) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var frames []sseFrame
	for _, chunk := range strings.Split(string(raw), "\n\n") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(line, "event: ") {
				f.name = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if f.name != "" {
			frames = append(frames, f)
		}
	}
	return resp.StatusCode, frames
}

func TestChat_StreamsFullProtocol(t *testing.T) {
	srv, _ := newTestServer(t)

	status, frames := postChat(t, srv, `{"message": "industry outlook"}`)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, frames)

	assert.Equal(t, "thread_id", frames[0].name)
	assert.Equal(t, "done", frames[len(frames)-1].name)

	var names []string
	for _, f := range frames {
		names = append(names, f.name)
	}
	assert.Contains(t, names, "planning")
	assert.Contains(t, names, "research_progress")
	assert.Contains(t, names, "writing")

	var done struct {
		Query    string `json:"query"`
		Report   string `json:"report"`
		Metadata struct {
			SubQuestionCount int `json:"sub_question_count"`
			SourcesAnalyzed  int `json:"sources_analyzed"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1].data), &done))
	assert.Equal(t, "industry outlook", done.Query)
	assert.Equal(t, "# Report\n\nFindings.", done.Report)
	assert.Equal(t, 3, done.Metadata.SubQuestionCount)
	assert.Equal(t, 3, done.Metadata.SourcesAnalyzed)
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message": ""}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_InvalidBodyRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_UnknownThreadIsErrorFrame(t *testing.T) {
	srv, _ := newTestServer(t)

	status, frames := postChat(t, srv, `{"message": "hello", "thread_id": "no-such-thread"}`)
	require.Equal(t, http.StatusOK, status, "stream opens before thread resolution")
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].name)
	assert.Contains(t, frames[0].data, "unknown thread")
}

func TestChat_UnknownThreadCountsAsClientError(t *testing.T) {
	srv, _ := newTestServer(t)

	before4xx := promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "4xx"))
	before5xx := promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "5xx"))

	_, frames := postChat(t, srv, `{"message": "hello", "thread_id": "no-such-thread"}`)
	require.Len(t, frames, 1)
	require.Equal(t, "error", frames[0].name)

	assert.Equal(t, before4xx+1, promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "4xx")),
		"unknown thread is user-correctable")
	assert.Equal(t, before5xx, promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "5xx")))
}

// appendFailStore simulates a backend fault when recording the turn.
type appendFailStore struct {
	*thread.InMemoryStore
}

func (s *appendFailStore) AppendTurn(threadID string, turn *core.Turn) error {
	return errors.New("store unavailable")
}

func TestChat_InternalFailureCountsAsServerError(t *testing.T) {
	store := &appendFailStore{InMemoryStore: thread.NewInMemoryStore()}
	orch := workflow.New(
		&stubStage{name: core.StagePlan},
		&stubStage{name: core.StageResearch},
		&stubStage{name: core.StageWrite},
		func(o *workflow.Options) { o.ThreadStore = store },
	)
	srv := httptest.NewServer(New(orch).Router())
	t.Cleanup(srv.Close)

	before4xx := promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "4xx"))
	before5xx := promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "5xx"))

	status, frames := postChat(t, srv, `{"message": "hello"}`)
	require.Equal(t, http.StatusOK, status, "stream is already open when the run fails")
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].name)
	assert.Contains(t, frames[0].data, "failed to start research")
	assert.NotContains(t, frames[0].data, "store unavailable", "internal detail stays out of the stream")

	assert.Equal(t, before5xx+1, promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "5xx")),
		"backend faults are not client errors")
	assert.Equal(t, before4xx, promtestutil.ToFloat64(requestsTotal.WithLabelValues("chat", "4xx")))
}

func TestChat_ThreadContinuity(t *testing.T) {
	srv, store := newTestServer(t)

	_, frames := postChat(t, srv, `{"message": "first"}`)
	var first struct {
		ThreadID string `json:"thread_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &first))

	_, frames = postChat(t, srv, `{"message": "second", "thread_id": "`+first.ThreadID+`"}`)
	assert.Equal(t, "done", frames[len(frames)-1].name)

	turns, err := store.History(first.ThreadID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Query)
	assert.Equal(t, "second", turns[1].Query)
}

func TestThreadHistory(t *testing.T) {
	srv, _ := newTestServer(t)

	_, frames := postChat(t, srv, `{"message": "hello"}`)
	var ids struct {
		ThreadID string `json:"thread_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[0].data), &ids))

	resp, err := http.Get(srv.URL + "/threads/" + ids.ThreadID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ThreadID string       `json:"thread_id"`
		Turns    []*core.Turn `json:"turns"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ids.ThreadID, body.ThreadID)
	require.Len(t, body.Turns, 1)
	assert.Equal(t, core.StatusDone, body.Turns[0].Status)
}

func TestThreadHistory_UnknownThread(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/threads/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status        string `json:"status"`
		ActiveThreads int    `json:"active_threads"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)

	postChat(t, srv, `{"message": "hello"}`)

	resp2, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	assert.Equal(t, 1, body.ActiveThreads)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	postChat(t, srv, `{"message": "hello"}`)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "deepresearch_requests_total")
	assert.Contains(t, string(raw), "deepresearch_turns_total")
}
