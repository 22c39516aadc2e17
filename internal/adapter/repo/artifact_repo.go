package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"menu3d/internal/domain"
	"menu3d/internal/infra"
	"menu3d/internal/sqlinline"
)

// ArtifactRepositoryPG implements the model registry on dish_models.
type ArtifactRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewArtifactRepository(sql infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{sql: sql}
}

// Upsert creates the dish entry or replaces its asset in a single statement
// and returns the stored row.
func (r *ArtifactRepositoryPG) Upsert(ctx context.Context, artifact *domain.Artifact) (*domain.Artifact, error) {
	if artifact == nil || artifact.DishID == "" || artifact.AssetURL == "" {
		return nil, fmt.Errorf("dish id and asset url are required")
	}
	id := artifact.ID
	if id == "" {
		id = uuid.NewString()
	}
	out, err := scanArtifact(r.sql.QueryRow(ctx, sqlinline.QUpsertDishModel,
		id,
		artifact.DishID,
		artifact.AssetURL,
		artifact.ThumbnailURL,
		artifact.SizeBytes,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert dish model: %w", err)
	}
	return out, nil
}

func (r *ArtifactRepositoryPG) GetByDishID(ctx context.Context, dishID string) (*domain.Artifact, error) {
	out, err := scanArtifact(r.sql.QueryRow(ctx, sqlinline.QSelectDishModel, dishID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

func (r *ArtifactRepositoryPG) List(ctx context.Context) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListDishModels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var a domain.Artifact
	if err := row.Scan(
		&a.ID,
		&a.DishID,
		&a.AssetURL,
		&a.ThumbnailURL,
		&a.SizeBytes,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
