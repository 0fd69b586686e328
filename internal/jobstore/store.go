// Package jobstore implements the process-wide job-id to job-state mapping
// of spec.md §4.5: a single read/write lock guarding a map, with a
// fixed-cadence TTL reaper goroutine. Grounded on
// original_source/src/grade_orchestrator.rs's JobStore and the teacher's
// internal/app/stuck_jobs.go ticker-loop shape.
package jobstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/gradeengine/internal/broadcast"
	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Runner executes a job's grading pipeline (§4.6). Supplied by the caller
// (the engine) so this package stays free of engine/grader/cloner
// dependencies.
type Runner func(ctx context.Context, state *domain.JobState)

// Store implements domain.JobStore.
type Store struct {
	ttl    time.Duration
	runJob Runner
	now    func() time.Time
	mu     sync.RWMutex
	jobs   map[string]*domain.JobState
}

// New builds a Store. ttl is the age after which an entry is reaped
// (spec.md §4.5 default 3600s). runJob executes the grading pipeline for a
// job created via Create/Run.
func New(ttl time.Duration, runJob Runner) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		ttl:    ttl,
		runJob: runJob,
		now:    time.Now,
		jobs:   make(map[string]*domain.JobState),
	}
}

// Create implements domain.JobStore. Cheap and synchronous: no I/O.
func (s *Store) Create(req domain.GradeRequest) string {
	id := uuid.NewString()
	hub := broadcast.New()

	state := &domain.JobState{
		ID:          id,
		Status:      domain.JobPending,
		Request:     req,
		CreatedAt:   s.now(),
		Broadcaster: hub,
	}

	s.mu.Lock()
	s.jobs[id] = state
	s.mu.Unlock()

	hub.Publish(domain.GradeEvent{
		Type:          domain.EventGradeStarted,
		GradeID:       id,
		RepoURL:       req.RepoURL,
		TaskCount:     len(req.Tasks),
		TotalCriteria: totalCriteria(req.Tasks),
	})

	return id
}

// Get implements domain.JobStore.
func (s *Store) Get(id string) (domain.GradeReport, bool) {
	s.mu.RLock()
	state, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return domain.GradeReport{}, false
	}
	return state.Snapshot(), true
}

// Subscribe implements domain.JobStore.
func (s *Store) Subscribe(id string) (domain.Subscription, bool) {
	s.mu.RLock()
	state, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || state.Broadcaster == nil {
		return nil, false
	}
	return state.Broadcaster.Subscribe(), true
}

// Run implements domain.JobStore: executes the grading pipeline for id via
// the configured Runner, blocking until the job reaches a terminal state.
func (s *Store) Run(ctx context.Context, id string) {
	s.mu.RLock()
	state, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok || s.runJob == nil {
		return
	}
	s.runJob(ctx, state)
}

// StartReaper launches the TTL reaper goroutine on a fixed cadence,
// returning when ctx is done (spec.md §4.5: "fixed 60-second cadence").
// Reaping does not notify subscribers and does not close their streams: it
// removes the map entry only, and a subscription already attached stays open
// until its own Close is called.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job store reaper stopping")
			return
		case <-ticker.C:
			s.reapOnce()
		}
	}
}

func (s *Store) reapOnce() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, state := range s.jobs {
		if state.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func totalCriteria(tasks []domain.Task) int {
	n := 0
	for _, t := range tasks {
		n += len(t.Criteria)
	}
	return n
}
