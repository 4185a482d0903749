// Package service implements the deterministic engine: pipeline registry,
// run ledger, drift detection, quality evaluation, audit log, diagnostic
// sandbox, fix lifecycle, incident workflow, and the background scheduler.
package service

import (
	"context"
	"sort"
	"time"

	"pipemedic/internal/domain"
)

// RegistryService manages pipeline metadata, the dependency graph, and
// status-classified listings.
type RegistryService struct {
	pipelines domain.PipelineRepository
	runs      domain.RunRepository
	now       func() time.Time
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(pipelines domain.PipelineRepository, runs domain.RunRepository) *RegistryService {
	return &RegistryService{pipelines: pipelines, runs: runs, now: time.Now}
}

// Register creates a pipeline from the request.
func (s *RegistryService) Register(ctx context.Context, req *domain.RegisterPipelineRequest) (*domain.Pipeline, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.pipelines.Register(ctx, &domain.Pipeline{
		Name:        req.Name,
		Description: req.Description,
		Schedule:    req.Schedule,
		SLAMinutes:  req.SLAMinutes,
		Owner:       req.Owner,
	})
}

// Deactivate marks a pipeline inactive. The record and its history remain.
func (s *RegistryService) Deactivate(ctx context.Context, name string) error {
	return s.pipelines.Deactivate(ctx, name)
}

// AddDependency records a dependency edge, rejecting cycles.
func (s *RegistryService) AddDependency(ctx context.Context, pipeline, dependsOn string) error {
	return s.pipelines.AddDependency(ctx, pipeline, dependsOn)
}

// Upstream returns the direct upstream neighbors of a pipeline.
func (s *RegistryService) Upstream(ctx context.Context, name string) ([]domain.Pipeline, error) {
	return s.pipelines.Upstream(ctx, name)
}

// Downstream returns the direct downstream neighbors of a pipeline.
func (s *RegistryService) Downstream(ctx context.Context, name string) ([]domain.Pipeline, error) {
	return s.pipelines.Downstream(ctx, name)
}

// Statuses classifies every active pipeline and orders the result with
// failures first, then SLA breaches, then running, then healthy; pipelines
// of equal health sort by name.
func (s *RegistryService) Statuses(ctx context.Context) ([]domain.PipelineStatus, error) {
	pipelines, err := s.pipelines.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]domain.PipelineStatus, 0, len(pipelines))
	for i := range pipelines {
		p := pipelines[i]
		latest, err := s.runs.Latest(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PipelineStatus{
			Pipeline: p,
			Latest:   latest,
			Health:   domain.ClassifyHealth(&p, latest, now),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Health.Rank() != out[j].Health.Rank() {
			return out[i].Health.Rank() < out[j].Health.Rank()
		}
		return out[i].Pipeline.Name < out[j].Pipeline.Name
	})
	return out, nil
}

// Status classifies a single pipeline by name.
func (s *RegistryService) Status(ctx context.Context, name string) (*domain.PipelineStatus, error) {
	p, err := s.pipelines.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	latest, err := s.runs.Latest(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &domain.PipelineStatus{
		Pipeline: *p,
		Latest:   latest,
		Health:   domain.ClassifyHealth(p, latest, s.now()),
	}, nil
}
