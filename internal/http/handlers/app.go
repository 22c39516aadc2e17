package handlers

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"os"
	"time"

	"menu3d/internal/domain"
	"menu3d/internal/generation"
	"menu3d/internal/infra"
)

// GenerationService is the part of generation.Service the HTTP layer uses.
type GenerationService interface {
	Submit(ctx context.Context, req generation.SubmitRequest) (*domain.GenerationJob, error)
	GetJob(ctx context.Context, id string) (*domain.GenerationJob, error)
	ListJobs(ctx context.Context) ([]domain.GenerationJob, error)
	WaitJob(ctx context.Context, id string, wait time.Duration) (*domain.GenerationJob, error)
	GetModel(ctx context.Context, dishID string) (*domain.Artifact, error)
	ListModels(ctx context.Context) ([]domain.Artifact, error)
	ProviderConfigured() bool
	ImageArity() int
}

// FileOpener serves stored objects by key.
type FileOpener interface {
	Open(key string) (*os.File, fs.FileInfo, error)
}

type App struct {
	Generation     GenerationService
	Files          FileOpener
	MaxUploadBytes int64
	Logger         infra.Logger
}

func NewApp(svc GenerationService, files FileOpener, maxUploadBytes int64, logger infra.Logger) *App {
	return &App{
		Generation:     svc,
		Files:          files,
		MaxUploadBytes: maxUploadBytes,
		Logger:         infra.Component(logger, "http"),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Error: errCode, Message: msg})
}
