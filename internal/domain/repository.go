package domain

import (
	"context"
	"time"
)

// JobRepository is the Job Ledger: the single source of truth for job state.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	List(ctx context.Context) ([]GenerationJob, error)
	MarkProcessing(ctx context.Context, jobID string, progress int) error
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	Complete(ctx context.Context, jobID, resultURL string, completedAt time.Time) error
	Fail(ctx context.Context, jobID, errMsg string, completedAt time.Time) error
	FailInterrupted(ctx context.Context, errMsg string) (int64, error)
}

// ArtifactRepository is the Model Registry.
type ArtifactRepository interface {
	Upsert(ctx context.Context, artifact *Artifact) (*Artifact, error)
	GetByDishID(ctx context.Context, dishID string) (*Artifact, error)
	List(ctx context.Context) ([]Artifact, error)
}

// CompletionRepository closes a successful job and registers its artifact as
// one unit: either both are stored or neither is.
type CompletionRepository interface {
	CompleteWithArtifact(ctx context.Context, jobID, resultURL string, completedAt time.Time, artifact *Artifact) (*Artifact, error)
}
