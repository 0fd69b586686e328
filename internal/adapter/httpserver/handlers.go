// Package httpserver contains HTTP handlers and middleware.
//
// It provides REST API endpoints for submitting grading jobs, polling their
// reports, and streaming their progress. The package follows clean
// architecture principles and provides a clear separation between HTTP
// concerns and business logic.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/gradeengine/internal/config"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Server aggregates handler dependencies: the job store that owns the
// engine pipeline, and an optional persistence readiness probe.
type Server struct {
	Cfg    config.Config
	Jobs   domain.JobStore
	Ready  func(ctx context.Context) error
	Engine func(ctx context.Context, id string)
}

// NewServer constructs an HTTP server with all handlers wired. runJob runs
// the grading pipeline for a created job; CreateGradeHandler calls it in its
// own goroutine, so it may block (cmd/server passes jobStore.Run directly).
func NewServer(cfg config.Config, jobs domain.JobStore, ready func(ctx context.Context) error, runJob func(ctx context.Context, id string)) *Server {
	return &Server{Cfg: cfg, Jobs: jobs, Ready: ready, Engine: runJob}
}

type createGradeRequest struct {
	RepoURL string             `json:"repo_url"`
	Branch  string             `json:"branch,omitempty"`
	Tasks   []createGradeTask  `json:"tasks"`
	Config  domain.GradeConfig `json:"config,omitempty"`
}

type createGradeTask struct {
	Title            string                 `json:"title"`
	Description      string                 `json:"description,omitempty"`
	Criteria         []createGradeCriterion `json:"criteria"`
	EstimatedMinutes *int                   `json:"estimated_minutes,omitempty"`
}

type createGradeCriterion struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight,omitempty"`
}

// validate returns a 400-mapped error for an empty repo_url, empty tasks, or
// a task with empty criteria. Task titles and criterion descriptions are
// passed through uninterpreted — the grader absorbs an empty description as
// a low-signal prompt rather than a request-level error.
func (req createGradeRequest) validate() error {
	if req.RepoURL == "" {
		return fmt.Errorf("%w: repo_url is required", domain.ErrInvalidArgument)
	}
	if len(req.Tasks) == 0 {
		return fmt.Errorf("%w: tasks must be non-empty", domain.ErrInvalidArgument)
	}
	for i, t := range req.Tasks {
		if len(t.Criteria) == 0 {
			return fmt.Errorf("%w: tasks[%d].criteria must be non-empty", domain.ErrInvalidArgument, i)
		}
	}
	return nil
}

func (req createGradeRequest) toDomain() domain.GradeRequest {
	tasks := make([]domain.Task, len(req.Tasks))
	for i, t := range req.Tasks {
		criteria := make([]domain.Criterion, len(t.Criteria))
		for j, c := range t.Criteria {
			weight := c.Weight
			if weight == 0 {
				weight = 1
			}
			criteria[j] = domain.Criterion{ID: c.ID, Description: c.Description, Weight: weight}
		}
		tasks[i] = domain.Task{Title: t.Title, Description: t.Description, Criteria: criteria, EstimatedMinutes: t.EstimatedMinutes}
	}
	return domain.GradeRequest{RepoURL: req.RepoURL, Branch: req.Branch, Tasks: tasks, Config: req.Config}
}

// HealthzHandler implements `GET /api/health` (spec.md §6).
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the optional persistence adapter.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if s.Ready == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		if err := s.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

// CreateGradeHandler implements `POST /api/grade` (spec.md §6).
func (s *Server) CreateGradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

		var req createGradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, r, err, nil)
			return
		}

		id := s.Jobs.Create(req.toDomain())
		go s.Engine(context.Background(), id)

		writeJSON(w, http.StatusOK, map[string]string{"grade_id": id, "status": string(domain.JobPending)})
	}
}

// GetGradeHandler implements `GET /api/grade/{id}` (spec.md §6).
func (s *Server) GetGradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		report, ok := s.Jobs.Get(id)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: grade %s", domain.ErrNotFound, id), nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// StreamGradeHandler implements `GET /api/grade/{id}/stream`: an SSE stream
// of GradeEvent values with a 15s keep-alive ping (spec.md §6).
func (s *Server) StreamGradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sub, ok := s.Jobs.Subscribe(id)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: grade %s", domain.ErrNotFound, id), nil)
			return
		}
		defer sub.Close()

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, fmt.Errorf("streaming unsupported"), nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, open := <-sub.Events():
				if !open {
					return
				}
				if !writeSSEEvent(w, evt) {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if !writeSSEEvent(w, domain.GradeEvent{Type: domain.EventPing}) {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt domain.GradeEvent) bool {
	b, err := json.Marshal(evt)
	if err != nil {
		return true
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return false
	}
	return true
}
