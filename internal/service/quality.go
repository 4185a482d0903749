package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pipemedic/internal/domain"
)

// QualityService manages check definitions and produces verdicts from
// measured values. Results are append-only; the current result per check is
// the latest by checked-at.
type QualityService struct {
	checks    domain.QualityRepository
	pipelines domain.PipelineRepository
	warehouse domain.Warehouse
	logger    *slog.Logger
}

// NewQualityService creates a new QualityService.
func NewQualityService(checks domain.QualityRepository, pipelines domain.PipelineRepository, warehouse domain.Warehouse, logger *slog.Logger) *QualityService {
	return &QualityService{
		checks:    checks,
		pipelines: pipelines,
		warehouse: warehouse,
		logger:    logger.With("component", "quality"),
	}
}

// CreateCheck registers a check definition for the named pipeline.
func (s *QualityService) CreateCheck(ctx context.Context, pipelineName string, check *domain.QualityCheck) (*domain.QualityCheck, error) {
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	check.PipelineID = p.ID
	return s.checks.CreateCheck(ctx, check)
}

// RecordResult reduces a measured actual value to a verdict via the
// threshold table and persists the result.
func (s *QualityService) RecordResult(ctx context.Context, check *domain.QualityCheck, runID *string, actual float64) (*domain.QualityResult, error) {
	status, detail := domain.EvaluateThreshold(check.ThresholdType, check.ThresholdValue, actual)
	details := "{}"
	if detail != "" {
		details = fmt.Sprintf(`{"reason":%q}`, detail)
	}
	return s.checks.InsertResult(ctx, &domain.QualityResult{
		CheckID:       check.ID,
		RunID:         runID,
		Status:        status,
		ActualValue:   actual,
		ExpectedValue: check.ThresholdValue,
		CheckedAt:     time.Now().UTC(),
		Details:       details,
	})
}

// EvaluateCheck measures the check against the warehouse and records the
// verdict.
func (s *QualityService) EvaluateCheck(ctx context.Context, check *domain.QualityCheck, runID *string) (*domain.QualityResult, error) {
	actual, err := s.warehouse.Measure(ctx, check)
	if err != nil {
		return nil, err
	}
	result, err := s.RecordResult(ctx, check, runID, actual)
	if err != nil {
		return nil, err
	}
	if result.Status == domain.QualityFail {
		s.logger.Warn("quality check failed",
			"check", check.Name,
			"actual", result.ActualValue,
			"threshold", check.ThresholdValue,
		)
	}
	return result, nil
}

// EvaluatePipeline re-measures every active check of the named pipeline and
// returns the fresh results paired with their checks.
func (s *QualityService) EvaluatePipeline(ctx context.Context, pipelineName string) ([]domain.CheckWithResult, error) {
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	checks, err := s.checks.ListActiveChecks(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CheckWithResult, 0, len(checks))
	for i := range checks {
		result, err := s.EvaluateCheck(ctx, &checks[i], nil)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.CheckWithResult{Check: checks[i], Result: result})
	}
	return out, nil
}

// CurrentResults returns each active check of the named pipeline with its
// most recent stored result, without re-measuring.
func (s *QualityService) CurrentResults(ctx context.Context, pipelineName string) ([]domain.CheckWithResult, error) {
	p, err := s.pipelines.GetByName(ctx, pipelineName)
	if err != nil {
		return nil, err
	}
	return s.checks.CurrentResults(ctx, p.ID)
}

// PipelinesWithChecks returns pipeline names with active check counts.
func (s *QualityService) PipelinesWithChecks(ctx context.Context) (map[string]int64, error) {
	return s.checks.PipelinesWithChecks(ctx)
}
