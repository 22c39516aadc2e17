package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"menu3d/internal/domain"
)

type artifactResponse struct {
	ID           string    `json:"id"`
	DishID       string    `json:"dishId"`
	AssetURL     string    `json:"assetUrl"`
	ThumbnailURL *string   `json:"thumbnailUrl"`
	SizeBytes    *int64    `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toArtifactResponse(a *domain.Artifact) artifactResponse {
	return artifactResponse{
		ID:           a.ID,
		DishID:       a.DishID,
		AssetURL:     a.AssetURL,
		ThumbnailURL: a.ThumbnailURL,
		SizeBytes:    a.SizeBytes,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (a *App) GetDishModel(w http.ResponseWriter, r *http.Request) {
	dishID := chi.URLParam(r, "dishId")
	artifact, err := a.Generation.GetModel(r.Context(), dishID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no model registered for dish")
			return
		}
		a.Logger.Error().Err(err).Str("dish_id", dishID).Msg("get dish model")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load model")
		return
	}
	a.json(w, http.StatusOK, toArtifactResponse(artifact))
}

func (a *App) ListModels(w http.ResponseWriter, r *http.Request) {
	artifacts, err := a.Generation.ListModels(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("list models")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list models")
		return
	}
	out := make([]artifactResponse, 0, len(artifacts))
	for i := range artifacts {
		out = append(out, toArtifactResponse(&artifacts[i]))
	}
	a.json(w, http.StatusOK, out)
}
