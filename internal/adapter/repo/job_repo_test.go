package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"menu3d/internal/domain"
	"menu3d/internal/sqlinline"
)

const testJobID = "8f0c2a43-5a1e-4d0b-9c53-0a7b4f6f2e11"

func jobRow(status string, completedAt *time.Time) []any {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []any{
		testJobID,
		"dish-1",
		status,
		30,
		[]string{"/files/images/a.jpg"},
		"",
		"",
		created,
		created,
		completedAt,
	}
}

func TestJobRepositoryCreate(t *testing.T) {
	exec := &stubExecutor{rowsAffected: 1}
	r := NewJobRepository(exec)
	now := time.Now().UTC()
	err := r.Create(context.Background(), &domain.GenerationJob{
		ID:        testJobID,
		DishID:    "dish-1",
		Status:    domain.JobStatusPending,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if len(exec.execs) != 1 || exec.execs[0].query != sqlinline.QInsertGenerationJob {
		t.Fatalf("unexpected exec calls: %+v", exec.execs)
	}
	args := exec.execs[0].args
	if args[2] != "pending" {
		t.Fatalf("status arg = %v", args[2])
	}
	if images, ok := args[4].([]string); !ok || images == nil {
		t.Fatalf("input images must be a non-nil slice, got %#v", args[4])
	}
}

func TestJobRepositoryGetByID(t *testing.T) {
	exec := &stubExecutor{row: jobRow("processing", nil)}
	job, err := NewJobRepository(exec).GetByID(context.Background(), testJobID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.Progress != 30 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.CompletedAt != nil {
		t.Fatal("CompletedAt should be nil")
	}
	if len(job.InputImages) != 1 {
		t.Fatalf("InputImages = %v", job.InputImages)
	}
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	exec := &stubExecutor{rowErr: pgx.ErrNoRows}
	if _, err := NewJobRepository(exec).GetByID(context.Background(), testJobID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobRepositoryGetByIDMalformed(t *testing.T) {
	exec := &stubExecutor{}
	if _, err := NewJobRepository(exec).GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if exec.rowQuery != "" {
		t.Fatal("malformed id must not reach the database")
	}
}

func TestJobRepositoryList(t *testing.T) {
	done := time.Now().UTC()
	exec := &stubExecutor{rows: [][]any{jobRow("completed", &done), jobRow("pending", nil)}}
	jobs, err := NewJobRepository(exec).List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].CompletedAt == nil || !jobs[0].CompletedAt.Equal(done) {
		t.Fatalf("CompletedAt = %v", jobs[0].CompletedAt)
	}
}

func TestJobRepositoryTransitionOnTerminalJob(t *testing.T) {
	exec := &stubExecutor{rowsAffected: 0}
	r := NewJobRepository(exec)
	if err := r.Complete(context.Background(), testJobID, "/files/models/x.glb", time.Now()); !errors.Is(err, domain.ErrJobNotActive) {
		t.Fatalf("expected ErrJobNotActive, got %v", err)
	}
	if err := r.UpdateProgress(context.Background(), testJobID, 60); !errors.Is(err, domain.ErrJobNotActive) {
		t.Fatalf("expected ErrJobNotActive, got %v", err)
	}
}

func TestJobRepositoryCompleteRequiresResult(t *testing.T) {
	exec := &stubExecutor{rowsAffected: 1}
	if err := NewJobRepository(exec).Complete(context.Background(), testJobID, "", time.Now()); err == nil {
		t.Fatal("expected error for empty result url")
	}
	if len(exec.execs) != 0 {
		t.Fatal("no statement should run")
	}
}

func TestJobRepositoryFail(t *testing.T) {
	exec := &stubExecutor{rowsAffected: 1}
	at := time.Now().UTC()
	if err := NewJobRepository(exec).Fail(context.Background(), testJobID, "provider error: boom", at); err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	call := exec.execs[0]
	if call.query != sqlinline.QFailGenerationJob {
		t.Fatal("expected fail statement")
	}
	if call.args[0] != testJobID || call.args[1] != "provider error: boom" || call.args[2] != at {
		t.Fatalf("unexpected args: %v", call.args)
	}
}

func TestJobRepositoryFailInterrupted(t *testing.T) {
	exec := &stubExecutor{rowsAffected: 3}
	n, err := NewJobRepository(exec).FailInterrupted(context.Background(), "interrupted")
	if err != nil {
		t.Fatalf("FailInterrupted error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}
