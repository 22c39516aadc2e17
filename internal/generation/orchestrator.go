package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"menu3d/internal/domain"
	"menu3d/internal/event"
	"menu3d/internal/infra"
	"menu3d/internal/providers/mesh"
	"menu3d/internal/storage"
)

// Failure messages recorded on jobs.
const (
	MsgInterruptedRestart  = "generation interrupted by service restart"
	MsgInterruptedShutdown = "generation interrupted by service shutdown"
	msgAuthFailure         = "provider authentication failed: the inference credential is invalid or expired"
	msgInternalError       = "generation failed: internal error"
)

const ledgerWriteTimeout = 10 * time.Second

// Orchestrator drives one job from acceptance to a terminal state.
type Orchestrator struct {
	jobs            domain.JobRepository
	completions     domain.CompletionRepository
	provider        MeshProvider
	store           ObjectStore
	materializer    *Materializer
	bus             event.Bus
	providerTimeout time.Duration
	logger          infra.Logger
	now             func() time.Time
}

// OrchestratorOptions carries the collaborators of an Orchestrator.
type OrchestratorOptions struct {
	Jobs            domain.JobRepository
	Completions     domain.CompletionRepository
	Provider        MeshProvider
	Store           ObjectStore
	Materializer    *Materializer
	Bus             event.Bus
	ProviderTimeout time.Duration
	Logger          infra.Logger
}

// NewOrchestrator builds an Orchestrator; ProviderTimeout defaults to ten minutes.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Orchestrator{
		jobs:            opts.Jobs,
		completions:     opts.Completions,
		provider:        opts.Provider,
		store:           opts.Store,
		materializer:    opts.Materializer,
		bus:             opts.Bus,
		providerTimeout: timeout,
		logger:          infra.Component(opts.Logger, "orchestrator"),
		now:             time.Now,
	}
}

// Run executes the checkpoint sequence for job. Every path ends with the job
// completed or failed; panics are recovered and recorded as failures.
func (o *Orchestrator) Run(ctx context.Context, job *domain.GenerationJob) {
	logger := o.logger.With().Str("job_id", job.ID).Str("dish_id", job.DishID).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("orchestration panicked")
			o.fail(ctx, job, msgInternalError)
		}
	}()

	if ctx.Err() != nil {
		o.fail(ctx, job, MsgInterruptedShutdown)
		return
	}

	if err := o.checkpoint(ctx, job, domain.ProgressAccepted, true); err != nil {
		o.abort(ctx, job, err)
		return
	}
	logger.Info().Msg("generation started")

	images, thumbnail, err := o.loadInputs(ctx, job)
	if err != nil {
		o.abort(ctx, job, err)
		return
	}

	if err := o.checkpoint(ctx, job, domain.ProgressSubmitted, false); err != nil {
		o.abort(ctx, job, err)
		return
	}
	result, err := o.callProvider(ctx, job, images)
	if err != nil {
		o.abort(ctx, job, err)
		return
	}
	logger.Info().Str("prediction_id", result.PredictionID).Str("asset_url", result.AssetURL).Msg("provider returned asset")

	if err := o.checkpoint(ctx, job, domain.ProgressPredicted, false); err != nil {
		o.abort(ctx, job, err)
		return
	}
	if err := o.checkpoint(ctx, job, domain.ProgressMaterializing, false); err != nil {
		o.abort(ctx, job, err)
		return
	}
	materialized := o.materializer.Materialize(ctx, job.ID, job.DishID, result.AssetURL)

	wctx, cancel := o.ledgerContext(ctx)
	defer cancel()
	completedAt := o.now().UTC()
	if _, err := o.completions.CompleteWithArtifact(wctx, job.ID, materialized.URL, completedAt, &domain.Artifact{
		DishID:       job.DishID,
		AssetURL:     materialized.URL,
		ThumbnailURL: thumbnail,
		SizeBytes:    materialized.SizeBytes,
	}); err != nil {
		if materialized.Local {
			o.discard(materialized.URL)
		}
		o.abort(ctx, job, fmt.Errorf("record completion: %w", err))
		return
	}
	job.Status = domain.JobStatusCompleted
	job.Progress = domain.ProgressDone
	job.ResultURL = materialized.URL
	job.CompletedAt = &completedAt
	o.publish(ctx, event.EventJobCompleted, job)
	logger.Info().Str("result_url", materialized.URL).Bool("local", materialized.Local).Msg("generation completed")
}

// discard removes a stored model that never made it into the registry.
func (o *Orchestrator) discard(url string) {
	key, ok := o.store.KeyFromURL(url)
	if !ok {
		return
	}
	if err := o.store.Remove(key); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to remove orphaned model")
	}
}

// loadInputs reads the staged photographs back from storage and renders the
// thumbnail from the first one. The thumbnail is best effort.
func (o *Orchestrator) loadInputs(ctx context.Context, job *domain.GenerationJob) ([]mesh.InputImage, *string, error) {
	if len(job.InputImages) == 0 {
		return nil, nil, errors.New("job has no input images")
	}
	images := make([]mesh.InputImage, 0, len(job.InputImages))
	for _, ref := range job.InputImages {
		key, ok := o.store.KeyFromURL(ref)
		if !ok {
			return nil, nil, fmt.Errorf("input image %q is not in storage", ref)
		}
		data, err := o.store.Read(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("read input image %s: %w", key, err)
		}
		images = append(images, mesh.InputImage{Data: data, MIME: http.DetectContentType(data)})
	}

	var thumbnailURL *string
	thumb, err := renderThumbnail(images[0].Data)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("thumbnail skipped")
		return images, nil, nil
	}
	key := path.Join(storage.NamespaceImages, job.ID+"_thumb.jpg")
	if stored, err := o.store.Write(ctx, key, thumb); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("thumbnail write failed")
	} else {
		u := o.store.PublicURL(stored)
		thumbnailURL = &u
	}
	return images, thumbnailURL, nil
}

// callProvider bounds the provider interaction by providerTimeout and maps
// its errors onto the domain sentinels.
func (o *Orchestrator) callProvider(ctx context.Context, job *domain.GenerationJob, images []mesh.InputImage) (*mesh.MeshResult, error) {
	pctx, cancel := context.WithTimeout(ctx, o.providerTimeout)
	defer cancel()

	result, err := o.provider.GenerateMesh(pctx, mesh.MeshRequest{Images: images, RequestID: job.ID})
	if err == nil {
		return result, nil
	}
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, mesh.ErrUnauthorized), errors.Is(err, mesh.ErrMissingAPIKey):
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderAuth, err)
	case errors.Is(pctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %s", domain.ErrProviderTimeout, o.providerTimeout)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
}

// checkpoint persists progress and announces it. first also moves the job to
// processing.
func (o *Orchestrator) checkpoint(ctx context.Context, job *domain.GenerationJob, progress int, first bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wctx, cancel := o.ledgerContext(ctx)
	defer cancel()
	var err error
	if first {
		err = o.jobs.MarkProcessing(wctx, job.ID, progress)
	} else {
		err = o.jobs.UpdateProgress(wctx, job.ID, progress)
	}
	if err != nil {
		return fmt.Errorf("record progress %d: %w", progress, err)
	}
	job.Status = domain.JobStatusProcessing
	if progress > job.Progress {
		job.Progress = progress
	}
	o.publish(ctx, event.EventJobProgress, job)
	return nil
}

// abort records err on the job unless the job already left the active states.
func (o *Orchestrator) abort(ctx context.Context, job *domain.GenerationJob, err error) {
	if errors.Is(err, domain.ErrJobNotActive) {
		o.logger.Warn().Str("job_id", job.ID).Msg("job no longer active, abandoning")
		return
	}
	msg := failureMessage(err)
	o.logger.Error().Err(err).Str("job_id", job.ID).Str("reason", msg).Msg("generation failed")
	o.fail(ctx, job, msg)
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.GenerationJob, msg string) {
	wctx, cancel := o.ledgerContext(ctx)
	defer cancel()
	at := o.now().UTC()
	if err := o.jobs.Fail(wctx, job.ID, msg, at); err != nil {
		if !errors.Is(err, domain.ErrJobNotActive) {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to record job failure")
		}
		return
	}
	job.Status = domain.JobStatusFailed
	job.Error = msg
	job.ResultURL = ""
	job.CompletedAt = &at
	o.publish(ctx, event.EventJobFailed, job)
}

// failureMessage turns an orchestration error into the text stored on the job.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return MsgInterruptedShutdown
	case errors.Is(err, domain.ErrProviderAuth):
		return msgAuthFailure
	case errors.Is(err, domain.ErrProviderTimeout):
		return err.Error()
	case errors.Is(err, domain.ErrProviderFailure):
		return "provider error: " + strings.TrimPrefix(err.Error(), domain.ErrProviderFailure.Error()+": ")
	default:
		return "generation failed: " + err.Error()
	}
}

// ledgerContext detaches ledger writes from cancellation so a shutdown can
// still record the terminal state.
func (o *Orchestrator) ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

func (o *Orchestrator) publish(ctx context.Context, typ event.EventType, job *domain.GenerationJob) {
	if o.bus == nil {
		return
	}
	_ = o.bus.Publish(context.WithoutCancel(ctx), event.Event{
		Type:    typ,
		Payload: jobEvent(job),
	})
}

func jobEvent(job *domain.GenerationJob) event.JobEvent {
	return event.JobEvent{
		JobID:     job.ID,
		DishID:    job.DishID,
		Status:    string(job.Status),
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
		Error:     job.Error,
	}
}
