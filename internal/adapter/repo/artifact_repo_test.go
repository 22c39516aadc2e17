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

func artifactRow(dishID, assetURL string) []any {
	now := time.Now().UTC()
	return []any{"0f7b5e1a-2d7c-4a3e-8a51-1c9d3b2e4f60", dishID, assetURL, nil, nil, now, now}
}

func TestArtifactRepositoryUpsert(t *testing.T) {
	exec := &stubExecutor{row: artifactRow("dish-1", "/files/models/a.glb")}
	thumb := "/files/images/t.jpg"
	out, err := NewArtifactRepository(exec).Upsert(context.Background(), &domain.Artifact{
		DishID:       "dish-1",
		AssetURL:     "/files/models/a.glb",
		ThumbnailURL: &thumb,
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if exec.rowQuery != sqlinline.QUpsertDishModel {
		t.Fatal("expected upsert statement")
	}
	if id, ok := exec.rowArgs[0].(string); !ok || id == "" {
		t.Fatalf("expected generated id, got %v", exec.rowArgs[0])
	}
	if out.AssetURL != "/files/models/a.glb" {
		t.Fatalf("AssetURL = %q", out.AssetURL)
	}
}

func TestArtifactRepositoryUpsertValidates(t *testing.T) {
	exec := &stubExecutor{}
	if _, err := NewArtifactRepository(exec).Upsert(context.Background(), &domain.Artifact{DishID: "dish-1"}); err == nil {
		t.Fatal("expected error without asset url")
	}
}

func TestArtifactRepositoryGetByDishIDNotFound(t *testing.T) {
	exec := &stubExecutor{rowErr: pgx.ErrNoRows}
	if _, err := NewArtifactRepository(exec).GetByDishID(context.Background(), "dish-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArtifactRepositoryList(t *testing.T) {
	exec := &stubExecutor{rows: [][]any{artifactRow("a", "/x.glb"), artifactRow("b", "/y.glb")}}
	items, err := NewArtifactRepository(exec).List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(items) != 2 || items[1].DishID != "b" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].ThumbnailURL != nil {
		t.Fatal("ThumbnailURL should be nil")
	}
}
