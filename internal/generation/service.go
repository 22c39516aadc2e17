package generation

import (
	"context"
	"time"

	"menu3d/internal/domain"
	"menu3d/internal/event"
)

// Service is the facade the HTTP layer talks to.
type Service struct {
	gate        *Gate
	jobs        domain.JobRepository
	artifacts   domain.ArtifactRepository
	provider    MeshProvider
	bus         event.Bus
	longPollMax time.Duration
}

type ServiceOptions struct {
	Gate        *Gate
	Jobs        domain.JobRepository
	Artifacts   domain.ArtifactRepository
	Provider    MeshProvider
	Bus         event.Bus
	LongPollMax time.Duration
}

func NewService(opts ServiceOptions) *Service {
	longPoll := opts.LongPollMax
	if longPoll <= 0 {
		longPoll = 30 * time.Second
	}
	return &Service{
		gate:        opts.Gate,
		jobs:        opts.Jobs,
		artifacts:   opts.Artifacts,
		provider:    opts.Provider,
		bus:         opts.Bus,
		longPollMax: longPoll,
	}
}

func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	return s.gate.Accept(ctx, req)
}

func (s *Service) GetJob(ctx context.Context, id string) (*domain.GenerationJob, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]domain.GenerationJob, error) {
	return s.jobs.List(ctx)
}

// WaitJob returns the job once it is terminal or after wait (capped by the
// long-poll maximum), whichever comes first. A cancelled ctx ends the wait
// early and returns the latest snapshot.
func (s *Service) WaitJob(ctx context.Context, id string, wait time.Duration) (*domain.GenerationJob, error) {
	if wait <= 0 || s.bus == nil {
		return s.jobs.GetByID(ctx, id)
	}
	if wait > s.longPollMax {
		wait = s.longPollMax
	}

	// Subscribe before the first read so a transition in between is not lost.
	changed, unsubscribe := event.WatchJob(s.bus, id)
	defer unsubscribe()

	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for !job.Status.Terminal() {
		select {
		case <-changed:
		case <-timer.C:
			return job, nil
		case <-ctx.Done():
			return job, nil
		}
		next, err := s.jobs.GetByID(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return job, nil
			}
			return nil, err
		}
		job = next
	}
	return job, nil
}

func (s *Service) GetModel(ctx context.Context, dishID string) (*domain.Artifact, error) {
	return s.artifacts.GetByDishID(ctx, dishID)
}

func (s *Service) ListModels(ctx context.Context) ([]domain.Artifact, error) {
	return s.artifacts.List(ctx)
}

// ProviderConfigured reports whether job submission is enabled.
func (s *Service) ProviderConfigured() bool {
	return s.provider != nil && s.provider.HasCredentials()
}

// ImageArity is the required number of images per submission.
func (s *Service) ImageArity() int {
	return s.gate.Arity()
}
