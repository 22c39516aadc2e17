package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"menu3d/internal/domain"
	"menu3d/internal/event"
	"menu3d/internal/infra"
	"menu3d/internal/storage"
)

const maxDishIDLength = 128

// allowedImageTypes maps sniffed content types to stored extensions.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageUpload is one photograph as received by the transport.
type ImageUpload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// SubmitRequest is an inbound generation request.
type SubmitRequest struct {
	DishID string
	Images []ImageUpload
}

// Runner executes an accepted job.
type Runner interface {
	Run(ctx context.Context, job *domain.GenerationJob)
}

// Gate validates uploads, stages them and hands accepted jobs to the pool.
type Gate struct {
	jobs           domain.JobRepository
	store          ObjectStore
	provider       MeshProvider
	pool           *Pool
	runner         Runner
	bus            event.Bus
	arity          int
	maxUploadBytes int64
	logger         infra.Logger
	now            func() time.Time
}

// GateOptions carries the collaborators and limits of a Gate.
type GateOptions struct {
	Jobs           domain.JobRepository
	Store          ObjectStore
	Provider       MeshProvider
	Pool           *Pool
	Runner         Runner
	Bus            event.Bus
	Arity          int
	MaxUploadBytes int64
	Logger         infra.Logger
}

// NewGate builds a Gate; Arity defaults to one image and MaxUploadBytes to 10MB.
func NewGate(opts GateOptions) *Gate {
	arity := opts.Arity
	if arity < 1 {
		arity = infra.SingleImageArity
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Gate{
		jobs:           opts.Jobs,
		store:          opts.Store,
		provider:       opts.Provider,
		pool:           opts.Pool,
		runner:         opts.Runner,
		bus:            opts.Bus,
		arity:          arity,
		maxUploadBytes: maxBytes,
		logger:         infra.Component(opts.Logger, "upload_gate"),
		now:            time.Now,
	}
}

// Arity is the exact number of images every request must carry.
func (g *Gate) Arity() int { return g.arity }

type stagedImage struct {
	data []byte
	ext  string
}

// Accept validates req and, when it passes, stores the images, creates a
// pending job and schedules it. Nothing is written unless every check passes
// and a pool slot is available.
func (g *Gate) Accept(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	dishID := strings.TrimSpace(req.DishID)
	if dishID == "" {
		return nil, &domain.ValidationError{Field: "dishId", Reason: "is required"}
	}
	if len(dishID) > maxDishIDLength {
		return nil, &domain.ValidationError{Field: "dishId", Reason: fmt.Sprintf("must be at most %d characters", maxDishIDLength)}
	}
	if len(req.Images) != g.arity {
		return nil, &domain.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("expected exactly %d image(s), got %d", g.arity, len(req.Images)),
		}
	}

	staged := make([]stagedImage, 0, len(req.Images))
	for i, upload := range req.Images {
		img, err := g.readImage(upload)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				verr.Field = fmt.Sprintf("images[%d]", i)
				return nil, verr
			}
			return nil, err
		}
		staged = append(staged, img)
	}

	if g.provider == nil || !g.provider.HasCredentials() {
		return nil, fmt.Errorf("%w: inference provider is not configured", domain.ErrServiceUnavailable)
	}

	reservation, err := g.pool.Reserve()
	if err != nil {
		if errors.Is(err, ErrPoolStopped) {
			return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		}
		return nil, err
	}

	job, err := g.persist(ctx, dishID, staged)
	if err != nil {
		reservation.Release()
		return nil, err
	}

	snapshot := job.Clone()
	if err := reservation.Submit(func(ctx context.Context) { g.runner.Run(ctx, snapshot) }); err != nil {
		// The pool stopped between Reserve and Submit; the job cannot run.
		g.logger.Warn().Err(err).Str("job_id", job.ID).Msg("job not scheduled")
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
		defer cancel()
		if ferr := g.jobs.Fail(wctx, job.ID, MsgInterruptedShutdown, g.now().UTC()); ferr != nil && !errors.Is(ferr, domain.ErrJobNotActive) {
			g.logger.Error().Err(ferr).Str("job_id", job.ID).Msg("failed to record job failure")
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	g.logger.Info().
		Str("job_id", job.ID).
		Str("dish_id", dishID).
		Int("images", len(staged)).
		Int("in_flight", g.pool.InFlight()).
		Msg("generation job accepted")
	return job, nil
}

// persist writes the staged images and the pending job row. Files written
// before a failure are removed.
func (g *Gate) persist(ctx context.Context, dishID string, staged []stagedImage) (*domain.GenerationJob, error) {
	keys := make([]string, 0, len(staged))
	cleanup := func() {
		for _, key := range keys {
			if err := g.store.Remove(key); err != nil {
				g.logger.Warn().Err(err).Str("key", key).Msg("failed to remove staged image")
			}
		}
	}

	urls := make([]string, 0, len(staged))
	for _, img := range staged {
		key, err := g.store.Write(ctx, path.Join(storage.NamespaceImages, uuid.NewString()+img.ext), img.data)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("store image: %w", err)
		}
		keys = append(keys, key)
		urls = append(urls, g.store.PublicURL(key))
	}

	now := g.now().UTC()
	job := &domain.GenerationJob{
		ID:          uuid.NewString(),
		DishID:      dishID,
		Status:      domain.JobStatusPending,
		Progress:    0,
		InputImages: urls,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.jobs.Create(ctx, job); err != nil {
		cleanup()
		return nil, fmt.Errorf("create job: %w", err)
	}
	if g.bus != nil {
		_ = g.bus.Publish(ctx, event.Event{Type: event.EventJobCreated, Payload: jobEvent(job)})
	}
	return job, nil
}

// readImage enforces the size cap and sniffs the content type from the bytes
// rather than trusting the client-declared type.
func (g *Gate) readImage(upload ImageUpload) (stagedImage, error) {
	if upload.Size > g.maxUploadBytes {
		return stagedImage{}, &domain.ValidationError{Reason: fmt.Sprintf("exceeds the %d byte limit", g.maxUploadBytes)}
	}
	if upload.Open == nil {
		return stagedImage{}, &domain.ValidationError{Reason: "is missing"}
	}
	rc, err := upload.Open()
	if err != nil {
		return stagedImage{}, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, g.maxUploadBytes+1))
	if err != nil {
		return stagedImage{}, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return stagedImage{}, &domain.ValidationError{Reason: "is empty"}
	}
	if n > g.maxUploadBytes {
		return stagedImage{}, &domain.ValidationError{Reason: fmt.Sprintf("exceeds the %d byte limit", g.maxUploadBytes)}
	}
	contentType := http.DetectContentType(buf.Bytes())
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return stagedImage{}, &domain.ValidationError{Reason: fmt.Sprintf("unsupported content type %s", contentType)}
	}
	return stagedImage{data: buf.Bytes(), ext: ext}, nil
}
