package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/deepresearch/core"
	"github.com/hupe1980/deepresearch/gateway"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/workflow"
)

// Options configure the HTTP server.
type Options struct {
	// Addr is the listen address.
	Addr string
	// ChunkSize is the target byte size for streamed report chunks.
	ChunkSize int
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger for request diagnostics.
	Logger logging.Logger
}

// Server serves the research API.
type Server struct {
	orch      *workflow.Orchestrator
	router    chi.Router
	addr      string
	chunkSize int
	timeout   time.Duration
	logger    *logging.ResearchLogger
}

// New builds a Server around an orchestrator.
func New(orch *workflow.Orchestrator, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:            ":8000",
		ChunkSize:       gateway.DefaultChunkSize,
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		orch:      orch,
		addr:      opts.Addr,
		chunkSize: opts.ChunkSize,
		timeout:   opts.ShutdownTimeout,
		logger:    logging.NewResearchLogger(opts.Logger),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/chat", s.handleChat)
	r.Get("/threads/{threadID}", s.handleThreadHistory)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	s.router = r

	return s
}

// Router exposes the handler tree (used by tests and embedding callers).
func (s *Server) Router() http.Handler { return s.router }

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// handleChat starts a research turn and streams its progress. The request
// context drives the run, so a client disconnect cancels the workflow.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestsTotal.WithLabelValues("chat", "4xx").Inc()
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		requestsTotal.WithLabelValues("chat", "4xx").Inc()
		writeJSONError(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	streamer, err := gateway.NewStreamer(w, func(o *gateway.StreamerOptions) {
		o.ChunkSize = s.chunkSize
		o.Logger = s.logger
	})
	if err != nil {
		requestsTotal.WithLabelValues("chat", "5xx").Inc()
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	start := time.Now()
	run, err := s.orch.Run(r.Context(), req.Message, req.ThreadID)
	if err != nil {
		// Failures surface as terminal error frames on the already-open
		// stream, not as HTTP status codes. Only user-correctable ones count
		// as 4xx; anything else is an internal failure.
		detail := "failed to start research"
		status := "5xx"
		if core.IsUnknownThread(err) || errors.Is(err, workflow.ErrEmptyQuery) {
			detail = err.Error()
			status = "4xx"
		}
		requestsTotal.WithLabelValues("chat", status).Inc()
		_ = streamer.WriteError(detail)
		return
	}

	requestsTotal.WithLabelValues("chat", "2xx").Inc()
	activeStreams.Inc()
	defer activeStreams.Dec()

	if err := streamer.Stream(r.Context(), run.ThreadID, run.Events); err != nil {
		s.logger.Debug("stream ended early", "thread_id", run.ThreadID, "error", err.Error())
	}
	s.recordTurnMetrics(run, time.Since(start))
}

// recordTurnMetrics reads the finalized turn back from the store; the
// orchestrator finalizes before closing the event channel, so the status is
// terminal by the time streaming ends.
func (s *Server) recordTurnMetrics(run *workflow.Run, elapsed time.Duration) {
	turns, err := s.orch.ThreadStore().History(run.ThreadID)
	if err != nil {
		return
	}
	for _, turn := range turns {
		if turn.ID == run.TurnID {
			turnsTotal.WithLabelValues(string(turn.Status)).Inc()
			turnDuration.Observe(elapsed.Seconds())
			return
		}
	}
}

func (s *Server) handleThreadHistory(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	turns, err := s.orch.ThreadStore().History(threadID)
	if err != nil {
		if core.IsUnknownThread(err) {
			requestsTotal.WithLabelValues("threads", "4xx").Inc()
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		requestsTotal.WithLabelValues("threads", "5xx").Inc()
		writeJSONError(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	requestsTotal.WithLabelValues("threads", "2xx").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"turns":     turns,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("health", "2xx").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"active_threads": s.orch.ThreadStore().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
