// Package trigger implements the remote trigger HTTP API using chi.
// A single pipeline run may be in flight at a time; further trigger
// requests are rejected until it finishes.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arnvik/raido/internal/apperr"
	"github.com/arnvik/raido/internal/sse"
)

// RunFunc starts one pipeline run. It is invoked on its own goroutine.
// batchFiles is empty for a full note-sync run; the watcher fills it with
// the names of batch files dropped into the urls directory, and the run
// processes exactly those.
type RunFunc func(ctx context.Context, runID string, batchFiles []string) error

// RunResult records the outcome of the most recent run.
type RunResult struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// Server owns the run lock and the trigger endpoints.
type Server struct {
	runFn  RunFunc
	broker *sse.Broker
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	runID     string
	startedAt time.Time
	lastRun   *RunResult
	steps     []string // step events of the current or last run
}

const maxSteps = 32

func NewServer(runFn RunFunc, broker *sse.Broker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{runFn: runFn, broker: broker, logger: logger}
}

// StartRun launches a full note-sync pipeline run unless one is already
// active. It returns the new run id or apperr.ErrRunActive.
func (s *Server) StartRun(ctx context.Context) (string, error) {
	return s.StartRunFor(ctx, nil)
}

// StartRunFor launches a run over the given dropped batch files. An empty
// list means a full note-sync run.
func (s *Server) StartRunFor(ctx context.Context, batchFiles []string) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", apperr.ErrRunActive
	}
	id := uuid.NewString()
	s.running = true
	s.runID = id
	s.startedAt = time.Now()
	s.steps = nil
	s.mu.Unlock()

	if s.broker != nil {
		s.broker.PublishRunEvent("run.started", id, "", "")
	}

	go func() {
		err := s.runFn(ctx, id, batchFiles)

		s.mu.Lock()
		result := &RunResult{
			RunID:      id,
			StartedAt:  s.startedAt,
			FinishedAt: time.Now(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		s.lastRun = result
		s.running = false
		s.runID = ""
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("run failed", "run_id", id, "error", err)
		} else {
			s.logger.Info("run finished", "run_id", id)
		}
		if s.broker != nil {
			s.broker.PublishRunEvent("run.finished", id, "", result.Error)
		}
	}()

	return id, nil
}

// RecordStep appends a step event to the current run's history.
func (s *Server) RecordStep(step, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := step
	if detail != "" {
		entry += ": " + detail
	}
	if len(s.steps) >= maxSteps {
		s.steps = s.steps[1:]
	}
	s.steps = append(s.steps, entry)
}

// Status returns the current run state and the last completed run.
func (s *Server) Status() (running bool, runID string, last *RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.runID, s.lastRun
}

// Steps returns the step events of the current or last run.
func (s *Server) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := s.StartRun(context.WithoutCancel(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody("a run is already in progress"))
		return
	}
	s.logger.Info("run triggered", "run_id", id, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	running, runID, last := s.Status()
	resp := map[string]any{"running": running}
	if running {
		resp["run_id"] = runID
	}
	if last != nil {
		resp["last_run"] = last
	}
	if steps := s.Steps(); len(steps) > 0 {
		resp["steps"] = steps
	}
	writeJSON(w, http.StatusOK, resp)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter creates a chi router with all trigger routes mounted.
// authEnabled controls whether Bearer token auth is enforced on /api.
func NewRouter(s *Server, authEnabled bool, token string) chi.Router {
	r := chi.NewRouter()

	r.Get("/health/live", handleHealth)
	r.Get("/health/ready", handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Use(AuthMiddleware(authEnabled, token))
		api.Post("/trigger", s.handleTrigger)
		api.Get("/status", s.handleStatus)
		if s.broker != nil {
			api.Get("/events", s.broker.ServeHTTP)
		}
	})

	return r
}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
