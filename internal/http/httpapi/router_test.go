package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"menu3d/internal/domain"
	"menu3d/internal/generation"
	"menu3d/internal/http/handlers"
	"menu3d/internal/storage"
)

type nopService struct{}

func (nopService) Submit(ctx context.Context, req generation.SubmitRequest) (*domain.GenerationJob, error) {
	return nil, &domain.ValidationError{Field: "dishId", Reason: "is required"}
}
func (nopService) GetJob(ctx context.Context, id string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}
func (nopService) ListJobs(ctx context.Context) ([]domain.GenerationJob, error) { return nil, nil }
func (nopService) WaitJob(ctx context.Context, id string, wait time.Duration) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}
func (nopService) GetModel(ctx context.Context, dishID string) (*domain.Artifact, error) {
	return nil, domain.ErrNotFound
}
func (nopService) ListModels(ctx context.Context) ([]domain.Artifact, error) { return nil, nil }
func (nopService) ProviderConfigured() bool                                  { return true }
func (nopService) ImageArity() int                                           { return 1 }

func newTestRouter(t *testing.T, limit int) (http.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir, "/files")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	logger := zerolog.New(io.Discard)
	app := handlers.NewApp(nopService{}, store, 1<<20, logger)
	return NewRouter(app, Options{FilesPrefix: "/files", SubmitLimitPerMin: limit, Logger: logger}), dir
}

func TestRouterRoutes(t *testing.T) {
	h, _ := newTestRouter(t, 0)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/healthz", http.StatusOK},
		{http.MethodGet, "/generation-jobs", http.StatusOK},
		{http.MethodGet, "/generation-jobs/unknown", http.StatusNotFound},
		{http.MethodGet, "/models", http.StatusOK},
		{http.MethodGet, "/dishes/D1/model", http.StatusNotFound},
		{http.MethodDelete, "/generation-jobs/x", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s %s: missing X-Request-ID", tc.method, tc.path)
		}
	}
}

func TestRouterFilesCORS(t *testing.T) {
	h, dir := newTestRouter(t, 0)
	if err := os.WriteFile(filepath.Join(dir, "images", "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/images/a.png", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("code=%d headers=%v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/files/models/a.glb", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Methods") != "GET, OPTIONS" {
		t.Fatalf("preflight code=%d headers=%v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("CORS must be limited to the files prefix")
	}
}

func TestRouterLimitsSubmissionsOnly(t *testing.T) {
	h, _ := newTestRouter(t, 1)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/generation-jobs", nil)
		req.RemoteAddr = "203.0.113.9:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/generation-jobs", nil)
		req.RemoteAddr = "203.0.113.9:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("reads must not be limited, got %d", rec.Code)
		}
	}
}
