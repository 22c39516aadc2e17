package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"menu3d/internal/domain"
	"menu3d/internal/infra"
	"menu3d/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on generation_jobs.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a pending job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	images := job.InputImages
	if images == nil {
		images = []string{}
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		job.DishID,
		string(job.Status),
		job.Progress,
		images,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert generation job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier. Malformed identifiers are reported
// as not found.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJob, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns every job, newest first.
func (r *JobRepositoryPG) List(ctx context.Context) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListGenerationJobs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.GenerationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, progress int) error {
	return r.transition(ctx, sqlinline.QMarkGenerationJobProcessing, jobID, progress)
}

func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return r.transition(ctx, sqlinline.QUpdateGenerationJobProgress, jobID, progress)
}

// Complete stores the result and closes the job.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, resultURL string, completedAt time.Time) error {
	if resultURL == "" {
		return fmt.Errorf("result url is required")
	}
	return r.transition(ctx, sqlinline.QCompleteGenerationJob, jobID, resultURL, completedAt)
}

// Fail records the error message and closes the job.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, errMsg string, completedAt time.Time) error {
	if errMsg == "" {
		errMsg = "generation failed"
	}
	return r.transition(ctx, sqlinline.QFailGenerationJob, jobID, errMsg, completedAt)
}

// FailInterrupted fails every job left pending or processing by a previous
// process and reports how many rows changed.
func (r *JobRepositoryPG) FailInterrupted(ctx context.Context, errMsg string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailInterruptedGenerationJobs, errMsg)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// transition runs a guarded update. Zero affected rows means the job is
// missing or already terminal.
func (r *JobRepositoryPG) transition(ctx context.Context, query, jobID string, args ...any) error {
	tag, err := r.sql.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotActive
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job    domain.GenerationJob
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.DishID,
		&status,
		&job.Progress,
		&job.InputImages,
		&job.ResultURL,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if job.InputImages == nil {
		job.InputImages = []string{}
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
