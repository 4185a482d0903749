package service

import (
	"context"

	"pipemedic/internal/domain"
)

// AuditService wraps the append-only action audit log. Persistence errors
// always propagate; the log is never best-effort.
type AuditService struct {
	actions domain.ActionRepository
}

// NewAuditService creates a new AuditService.
func NewAuditService(actions domain.ActionRepository) *AuditService {
	return &AuditService{actions: actions}
}

// Record appends one immutable entry and returns it with identifier and
// timestamp assigned.
func (s *AuditService) Record(ctx context.Context, a *domain.AgentAction) (*domain.AgentAction, error) {
	return s.actions.Insert(ctx, a)
}

// Recent returns the most recent entries, newest first.
func (s *AuditService) Recent(ctx context.Context, filter domain.ActionFilter) ([]domain.AgentAction, error) {
	return s.actions.Recent(ctx, filter)
}

// Patterns surfaces recurring failures per pipeline and alert type.
func (s *AuditService) Patterns(ctx context.Context) ([]domain.FailurePattern, error) {
	return s.actions.Patterns(ctx)
}

// Clear bulk-deletes the log. Maintenance tooling only.
func (s *AuditService) Clear(ctx context.Context) (int64, error) {
	return s.actions.Clear(ctx)
}
