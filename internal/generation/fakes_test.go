package generation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"menu3d/internal/domain"
	"menu3d/internal/providers/mesh"
	"menu3d/internal/storage"
)

func testLogger() zerolog.Logger { return zerolog.New(io.Discard) }

// memJobs is an in-memory ledger with the same guards as the SQL statements.
type memJobs struct {
	mu          sync.Mutex
	jobs        map[string]*domain.GenerationJob
	progress    map[string][]int
	createErr   error
	completeErr error
	failErr     error
	afterCreate func()
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]*domain.GenerationJob{}, progress: map[string][]int{}}
}

func (m *memJobs) Create(ctx context.Context, job *domain.GenerationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.jobs[job.ID] = job.Clone()
	if m.afterCreate != nil {
		m.afterCreate()
	}
	return nil
}

func (m *memJobs) GetByID(ctx context.Context, id string) (*domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *memJobs) List(ctx context.Context) ([]domain.GenerationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GenerationJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memJobs) active(id string) (*domain.GenerationJob, error) {
	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return nil, domain.ErrJobNotActive
	}
	return job, nil
}

func (m *memJobs) MarkProcessing(ctx context.Context, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.active(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusProcessing
	m.advance(job, progress)
	return nil
}

func (m *memJobs) UpdateProgress(ctx context.Context, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, err := m.active(id)
	if err != nil {
		return err
	}
	m.advance(job, progress)
	return nil
}

func (m *memJobs) advance(job *domain.GenerationJob, progress int) {
	if progress > job.Progress {
		job.Progress = progress
	}
	m.progress[job.ID] = append(m.progress[job.ID], job.Progress)
}

func (m *memJobs) Complete(ctx context.Context, id, resultURL string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	job, err := m.active(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ResultURL = resultURL
	job.Error = ""
	job.CompletedAt = &at
	m.progress[id] = append(m.progress[id], 100)
	return nil
}

func (m *memJobs) Fail(ctx context.Context, id, msg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	job, err := m.active(id)
	if err != nil {
		return err
	}
	job.Status = domain.JobStatusFailed
	job.ResultURL = ""
	job.Error = msg
	job.CompletedAt = &at
	return nil
}

func (m *memJobs) FailInterrupted(ctx context.Context, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for _, job := range m.jobs {
		if job.Status.Terminal() {
			continue
		}
		job.Status = domain.JobStatusFailed
		job.Error = msg
		job.CompletedAt = &now
		n++
	}
	return n, nil
}

func (m *memJobs) restore(job *domain.GenerationJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	m.progress[job.ID] = m.progress[job.ID][:len(m.progress[job.ID])-1]
}

func (m *memJobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *memJobs) history(id string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.progress[id]...)
}

type memArtifacts struct {
	mu        sync.Mutex
	byDish    map[string]domain.Artifact
	upsertErr error
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{byDish: map[string]domain.Artifact{}}
}

func (m *memArtifacts) Upsert(ctx context.Context, a *domain.Artifact) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	stored := *a
	if prev, ok := m.byDish[a.DishID]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.ID = "artifact-" + a.DishID
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = time.Now()
	m.byDish[a.DishID] = stored
	return &stored, nil
}

func (m *memArtifacts) GetByDishID(ctx context.Context, dishID string) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byDish[dishID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memArtifacts) List(ctx context.Context) ([]domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Artifact, 0, len(m.byDish))
	for _, a := range m.byDish {
		out = append(out, a)
	}
	return out, nil
}

// memCompletions pairs the ledger and registry fakes and undoes the job
// transition when the registry write fails.
type memCompletions struct {
	jobs      *memJobs
	artifacts *memArtifacts
}

func (m *memCompletions) CompleteWithArtifact(ctx context.Context, jobID, resultURL string, at time.Time, a *domain.Artifact) (*domain.Artifact, error) {
	before, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, domain.ErrJobNotActive
	}
	if err := m.jobs.Complete(ctx, jobID, resultURL, at); err != nil {
		return nil, err
	}
	stored, err := m.artifacts.Upsert(ctx, a)
	if err != nil {
		m.jobs.restore(before)
		return nil, fmt.Errorf("register model: %w", err)
	}
	return stored, nil
}

// fakeProvider answers GenerateMesh with fn, or with a fixed asset URL.
type fakeProvider struct {
	creds bool
	fn    func(ctx context.Context, req mesh.MeshRequest) (*mesh.MeshResult, error)

	mu    sync.Mutex
	calls []mesh.MeshRequest
}

func (f *fakeProvider) HasCredentials() bool { return f.creds }
func (f *fakeProvider) Model() string        { return "test/mesh" }

func (f *fakeProvider) GenerateMesh(ctx context.Context, req mesh.MeshRequest) (*mesh.MeshResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return &mesh.MeshResult{PredictionID: "pred-1", AssetURL: "https://cdn.invalid/out.glb"}, nil
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

// pngBytes renders a small solid PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func upload(name string, data []byte) ImageUpload {
	return ImageUpload{
		Filename: name,
		Size:     int64(len(data)),
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}
