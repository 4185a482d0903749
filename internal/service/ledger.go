package service

import (
	"context"
	"time"

	"pipemedic/internal/domain"
)

// DefaultHistoryLimit is the run count returned when a caller asks for
// history without a limit.
const DefaultHistoryLimit = 10

// LedgerService wraps the append-only run ledger.
type LedgerService struct {
	pipelines domain.PipelineRepository
	runs      domain.RunRepository
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(pipelines domain.PipelineRepository, runs domain.RunRepository) *LedgerService {
	return &LedgerService{pipelines: pipelines, runs: runs}
}

// StartRun opens a run for the named pipeline.
func (s *LedgerService) StartRun(ctx context.Context, pipelineName string) (*domain.PipelineRun, error) {
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	return s.runs.StartRun(ctx, p.ID, time.Now().UTC())
}

// CompleteRun finalizes a run. Completing twice fails with
// InvalidTransitionError from the ledger.
func (s *LedgerService) CompleteRun(ctx context.Context, runID, status string, rowCount *int64, errorMessage *string) (*domain.PipelineRun, error) {
	return s.runs.CompleteRun(ctx, runID, status, time.Now().UTC(), rowCount, errorMessage)
}

// Latest returns the most recent run of the named pipeline, or nil.
func (s *LedgerService) Latest(ctx context.Context, pipelineName string) (*domain.PipelineRun, error) {
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	return s.runs.Latest(ctx, p.ID)
}

// History returns the limit most recent runs, most recent first. A
// non-positive limit means the default.
func (s *LedgerService) History(ctx context.Context, pipelineName string, limit int) ([]domain.PipelineRun, error) {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	return s.runs.History(ctx, p.ID, limit)
}

// Purge removes runs older than the retention window.
func (s *LedgerService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return s.runs.PurgeBefore(ctx, time.Now().UTC().Add(-retention))
}
