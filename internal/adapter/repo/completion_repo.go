package repo

import (
	"context"
	"fmt"
	"time"

	"menu3d/internal/domain"
	"menu3d/internal/infra"
)

// CompletionRepositoryPG implements domain.CompletionRepository with the job
// and registry statements sharing one transaction.
type CompletionRepositoryPG struct {
	tx infra.Transactor
}

// NewCompletionRepository creates a completion repository over tx.
func NewCompletionRepository(tx infra.Transactor) *CompletionRepositoryPG {
	return &CompletionRepositoryPG{tx: tx}
}

// CompleteWithArtifact marks the job completed and upserts the dish entry.
// The job transition runs first so an inactive job never touches the registry.
func (r *CompletionRepositoryPG) CompleteWithArtifact(ctx context.Context, jobID, resultURL string, completedAt time.Time, artifact *domain.Artifact) (*domain.Artifact, error) {
	var stored *domain.Artifact
	err := r.tx.InTx(ctx, func(exec infra.SQLExecutor) error {
		if err := NewJobRepository(exec).Complete(ctx, jobID, resultURL, completedAt); err != nil {
			return err
		}
		out, err := NewArtifactRepository(exec).Upsert(ctx, artifact)
		if err != nil {
			return fmt.Errorf("register model: %w", err)
		}
		stored = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

var _ domain.CompletionRepository = (*CompletionRepositoryPG)(nil)
