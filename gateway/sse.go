package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/logging"
)

// Wire event names. These string tags exist only at this edge; everything
// upstream works with core.EventKind.
const (
	eventThreadID         = "thread_id"
	eventPlanning         = "planning"
	eventResearchProgress = "research_progress"
	eventWriting          = "writing"
	eventMessage          = "message"
	eventDone             = "done"
	eventError            = "error"
)

// StreamerOptions configure a Streamer.
type StreamerOptions struct {
	// ChunkSize is the target byte size for report message chunks.
	ChunkSize int
	// Logger for stream diagnostics.
	Logger logging.Logger
}

// Streamer writes SSE frames to one HTTP response. It is single-goroutine:
// one Streamer serves exactly one request.
type Streamer struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	chunkSize int
	seq       int
	logger    *logging.ResearchLogger
}

// NewStreamer prepares w for event streaming and writes the SSE headers. It
// fails when the ResponseWriter cannot flush, since unflushed SSE defeats the
// point.
func NewStreamer(w http.ResponseWriter, optFns ...func(o *StreamerOptions)) (*Streamer, error) {
	opts := StreamerOptions{
		ChunkSize: DefaultChunkSize,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable proxy buffering

	return &Streamer{
		w:         w,
		flusher:   flusher,
		chunkSize: opts.ChunkSize,
		logger:    logging.NewResearchLogger(opts.Logger),
	}, nil
}

// WriteEvent writes one id:/event:/data: frame and flushes it. Frame ids are
// the monotonic position within the stream.
func (s *Streamer) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError writes a terminal error frame.
func (s *Streamer) WriteError(detail string) error {
	return s.WriteEvent(eventError, map[string]string{"error": detail})
}

// Stream consumes a run's event channel and writes the wire protocol until
// the channel closes or the request context ends. The thread_id frame is
// written first; message chunks are emitted between the writing frame and the
// terminal frame.
func (s *Streamer) Stream(ctx context.Context, threadID string, events <-chan core.Event) error {
	if err := s.WriteEvent(eventThreadID, map[string]string{"thread_id": threadID}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("client disconnected", "thread_id", threadID)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.writeWorkflowEvent(threadID, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) writeWorkflowEvent(threadID string, ev core.Event) error {
	switch ev.Kind {
	case core.EventStageStarted:
		name, ok := progressEventName(ev.Stage)
		if !ok {
			return nil
		}
		return s.WriteEvent(name, map[string]string{})
	case core.EventStageCompleted:
		// completion cadence is internal; the wire only carries stage starts
		return nil
	case core.EventDone:
		for _, chunk := range ChunkText(ev.State.Report, s.chunkSize) {
			if err := s.WriteEvent(eventMessage, map[string]string{"content": chunk}); err != nil {
				return err
			}
		}
		return s.WriteEvent(eventDone, buildDonePayload(threadID, ev.State))
	case core.EventError:
		return s.WriteError(ev.ErrDetail)
	default:
		return nil
	}
}

func progressEventName(stage string) (string, bool) {
	switch stage {
	case core.StagePlan:
		return eventPlanning, true
	case core.StageResearch:
		return eventResearchProgress, true
	case core.StageWrite:
		return eventWriting, true
	default:
		return "", false
	}
}

type doneMetadata struct {
	SubQuestionCount    int    `json:"sub_question_count"`
	SourcesAnalyzed     int    `json:"sources_analyzed"`
	CompletionTimestamp string `json:"completion_timestamp"`
}

type donePayload struct {
	ThreadID         string          `json:"thread_id"`
	Query            string          `json:"query"`
	ExecutiveSummary string          `json:"executive_summary"`
	Report           string          `json:"report"`
	KeyTakeaways     []string        `json:"key_takeaways"`
	Limitations      string          `json:"limitations"`
	Citations        []core.Citation `json:"citations"`
	Metadata         doneMetadata    `json:"metadata"`
}

func buildDonePayload(threadID string, state *core.ResearchState) donePayload {
	citations := state.Citations
	if citations == nil {
		citations = []core.Citation{}
	}
	takeaways := state.KeyTakeaways
	if takeaways == nil {
		takeaways = []string{}
	}
	return donePayload{
		ThreadID:         threadID,
		Query:            state.Query,
		ExecutiveSummary: state.ExecutiveSummary,
		Report:           state.Report,
		KeyTakeaways:     takeaways,
		Limitations:      state.Limitations,
		Citations:        citations,
		Metadata: doneMetadata{
			SubQuestionCount:    len(state.Plan),
			SourcesAnalyzed:     state.SourcesAnalyzed,
			CompletionTimestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
