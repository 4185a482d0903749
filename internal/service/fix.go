package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pipemedic/internal/domain"
)

// FixService drives the fix lifecycle per target definition:
// Clean → Backed_Up → Applied → {Verified | Rolled_Back}.
// At most one outstanding fix per target; concurrent applies on the same
// target serialize and the loser fails fast.
type FixService struct {
	models  domain.ModelStore
	builder domain.Builder
	audit   *AuditService
	logger  *slog.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	records map[string]*domain.FixRecord
}

// NewFixService creates a new FixService.
func NewFixService(models domain.ModelStore, builder domain.Builder, audit *AuditService, logger *slog.Logger) *FixService {
	return &FixService{
		models:  models,
		builder: builder,
		audit:   audit,
		logger:  logger.With("component", "fix"),
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]*domain.FixRecord),
	}
}

func (s *FixService) targetLock(target string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[target]
	if !ok {
		l = &sync.Mutex{}
		s.locks[target] = l
	}
	return l
}

func (s *FixService) setRecord(target string, rec *domain.FixRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil {
		delete(s.records, target)
	} else {
		s.records[target] = rec
	}
}

// Record returns the in-memory fix record for a target, or nil.
func (s *FixService) Record(target string) *domain.FixRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[target]; ok {
		copied := *rec
		return &copied
	}
	return nil
}

// Apply backs up the target's current content and writes the new content in
// place. An unconsumed backup for the target fails with FixInProgressError;
// the backup on disk is authoritative, so the guard survives restarts.
func (s *FixService) Apply(ctx context.Context, target, newContent string) error {
	lock := s.targetLock(target)
	lock.Lock()
	defer lock.Unlock()

	if s.models.HasBackup(target) {
		return domain.ErrFixInProgress("an unverified fix is already applied to %s", target)
	}
	if _, err := s.models.Read(target); err != nil {
		return err
	}

	if err := s.models.Backup(target); err != nil {
		return err
	}
	if err := s.models.Write(target, newContent); err != nil {
		// The write failed after the backup was taken; restore so the
		// target is not left half-modified with a stale guard.
		if restoreErr := s.models.Restore(target); restoreErr != nil {
			s.logger.Error("restore after failed write", "target", target, "error", restoreErr)
		}
		return err
	}

	s.setRecord(target, &domain.FixRecord{
		Target:     target,
		BackupPath: target + ".backup",
		AppliedAt:  time.Now().UTC(),
		State:      domain.FixStateApplied,
	})

	if _, err := s.audit.Record(ctx, &domain.AgentAction{
		Actor:      domain.ActorRepair,
		ActionType: domain.ActionFixApplied,
		Summary:    fmt.Sprintf("fix applied to %s", target),
		Details:    fmt.Sprintf(`{"target":%q}`, target),
		Confidence: 1,
	}); err != nil {
		return err
	}
	s.logger.Info("fix applied", "target", target)
	return nil
}

// Validate runs the external build step for the target's project.
func (s *FixService) Validate(ctx context.Context, target string) (*domain.BuildResult, error) {
	return s.builder.Build(ctx, target)
}

// Rollback restores the backup content verbatim and consumes the backup.
// Requires an existing backup.
func (s *FixService) Rollback(ctx context.Context, target string) error {
	lock := s.targetLock(target)
	lock.Lock()
	defer lock.Unlock()

	if err := s.models.Restore(target); err != nil {
		return err
	}
	s.setRecord(target, &domain.FixRecord{
		Target:    target,
		AppliedAt: time.Now().UTC(),
		State:     domain.FixStateRolledBack,
	})

	if _, err := s.audit.Record(ctx, &domain.AgentAction{
		Actor:      domain.ActorRepair,
		ActionType: domain.ActionRollback,
		Summary:    fmt.Sprintf("fix rolled back on %s", target),
		Details:    fmt.Sprintf(`{"target":%q}`, target),
		Confidence: 1,
	}); err != nil {
		return err
	}
	s.logger.Info("fix rolled back", "target", target)
	return nil
}

// Commit discards the backup after a successful verification; no further
// rollback is possible for this fix.
func (s *FixService) Commit(ctx context.Context, target string) error {
	lock := s.targetLock(target)
	lock.Lock()
	defer lock.Unlock()

	if err := s.models.DiscardBackup(target); err != nil {
		return err
	}
	s.setRecord(target, &domain.FixRecord{
		Target:    target,
		AppliedAt: time.Now().UTC(),
		State:     domain.FixStateVerified,
	})

	if _, err := s.audit.Record(ctx, &domain.AgentAction{
		Actor:      domain.ActorVerification,
		ActionType: domain.ActionFixVerified,
		Summary:    fmt.Sprintf("fix verified on %s", target),
		Details:    fmt.Sprintf(`{"target":%q}`, target),
		Confidence: 1,
	}); err != nil {
		return err
	}
	s.logger.Info("fix committed", "target", target)
	return nil
}
