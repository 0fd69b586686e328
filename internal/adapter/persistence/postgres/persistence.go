// Package postgres implements the optional document-store persistence
// adapter of spec.md §6: best-effort job records keyed by a generated uuid
// record id and task upserts keyed by (curriculum_id, task_id), storing the
// GradeReport projection as JSONB.
// Grounded on the teacher's internal/adapter/repo/postgres/jobs_repo.go for
// the pgx pool/tracer/error-wrapping idiom, reusing this package's own
// conn.go for pool setup.
package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/gradeengine/internal/domain"
)

// Pool is the minimal pgx surface this adapter needs (upserts only — no
// reads), satisfied by *pgxpool.Pool.
type Pool interface {
	Exec(ctx domain.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Adapter implements domain.PersistenceAdapter against PostgreSQL.
type Adapter struct {
	pool Pool
}

// New builds an Adapter bound to pool.
func New(pool Pool) *Adapter {
	return &Adapter{pool: pool}
}

// SaveJob inserts a new job record and returns its id. Grounded on
// jobs_repo.go's Create (uuid-backed id, UTC timestamps).
func (a *Adapter) SaveJob(ctx domain.Context, req domain.GradeRequest, curriculumID, taskID string) (string, error) {
	tracer := otel.Tracer("persistence.postgres")
	ctx, span := tracer.Start(ctx, "jobs.SaveJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "grade_jobs"),
	)

	id := uuid.NewString()
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=persistence.save_job: marshal request: %w", err)
	}

	now := time.Now().UTC()
	q := `INSERT INTO grade_jobs (id, curriculum_id, task_id, request, status, created_at, updated_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $6)`
	if _, err := a.pool.Exec(ctx, q, id, nullable(curriculumID), nullable(taskID), reqJSON, string(domain.JobPending), now); err != nil {
		return "", fmt.Errorf("op=persistence.save_job: %w", err)
	}
	return id, nil
}

// UpdateJob writes the job's current report onto the existing record with id
// recordID (a plain UPDATE; no row is inserted). Grounded on jobs_repo.go's
// UpdateStatus shape, simplified to a single JSONB column since the report
// already carries status/score/tasks.
func (a *Adapter) UpdateJob(ctx domain.Context, recordID string, report domain.GradeReport) error {
	tracer := otel.Tracer("persistence.postgres")
	ctx, span := tracer.Start(ctx, "jobs.UpdateJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "grade_jobs"),
	)

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("op=persistence.update_job: marshal report: %w", err)
	}

	q := `UPDATE grade_jobs SET status=$2, report=$3, updated_at=$4 WHERE id=$1`
	if _, err := a.pool.Exec(ctx, q, recordID, string(report.Status), reportJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=persistence.update_job: %w", err)
	}
	return nil
}

// UpdateTask upserts the (curriculum_id, task_id) row with the report and
// the external task-status mapping of spec.md §6's persistence contract:
// "passed" for overall_score >= 0.9, "partial" for >= 0.4, "failed"
// otherwise — distinct from the in-memory TaskStatus buckets.
func (a *Adapter) UpdateTask(ctx domain.Context, curriculumID, taskID string, report domain.GradeReport) error {
	tracer := otel.Tracer("persistence.postgres")
	ctx, span := tracer.Start(ctx, "jobs.UpdateTask")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPSERT"),
		attribute.String("db.sql.table", "grade_tasks"),
	)

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("op=persistence.update_task: marshal report: %w", err)
	}

	q := `INSERT INTO grade_tasks (curriculum_id, task_id, status, report, updated_at)
	      VALUES ($1, $2, $3, $4, $5)
	      ON CONFLICT (curriculum_id, task_id) DO UPDATE
	      SET status = EXCLUDED.status, report = EXCLUDED.report, updated_at = EXCLUDED.updated_at`
	if _, err := a.pool.Exec(ctx, q, curriculumID, taskID, externalTaskStatus(report.OverallScore), reportJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=persistence.update_task: %w", err)
	}
	return nil
}

// externalTaskStatus maps overall_score to the document-store's
// three-bucket status vocabulary per spec.md §6.
func externalTaskStatus(overallScore float64) string {
	switch {
	case overallScore >= 0.9:
		return "passed"
	case overallScore >= 0.4:
		return "partial"
	default:
		return "failed"
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
