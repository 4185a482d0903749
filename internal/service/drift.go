package service

import (
	"context"
	"log/slog"

	"pipemedic/internal/domain"
)

// DriftService captures schema baselines from the warehouse and computes
// drift between the live layout and the stored snapshot.
type DriftService struct {
	warehouse domain.Warehouse
	snapshots domain.SchemaSnapshotRepository
	logger    *slog.Logger
}

// NewDriftService creates a new DriftService.
func NewDriftService(warehouse domain.Warehouse, snapshots domain.SchemaSnapshotRepository, logger *slog.Logger) *DriftService {
	return &DriftService{
		warehouse: warehouse,
		snapshots: snapshots,
		logger:    logger.With("component", "drift"),
	}
}

// Snapshot reads the live column layout of the table and replaces the stored
// baseline with it.
func (s *DriftService) Snapshot(ctx context.Context, table string) ([]domain.SchemaColumn, error) {
	columns, err := s.warehouse.ObservedColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, domain.ErrNotFound("table %s has no observable columns", table)
	}
	if err := s.snapshots.Replace(ctx, table, columns); err != nil {
		return nil, err
	}
	s.logger.Info("schema snapshot captured", "table", table, "columns", len(columns))
	return columns, nil
}

// Drift compares the live layout against the stored baseline. A table with
// no baseline reports no drift.
func (s *DriftService) Drift(ctx context.Context, table string) (*domain.SchemaDrift, error) {
	current, err := s.warehouse.ObservedColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	baseline, err := s.snapshots.Get(ctx, table)
	if err != nil {
		return nil, err
	}
	drift := domain.ComputeDrift(table, current, baseline)
	if drift.DriftDetected {
		s.logger.Warn("schema drift detected",
			"table", table,
			"added", drift.ColumnsAdded,
			"removed", drift.ColumnsRemoved,
		)
	}
	return &drift, nil
}

// MonitoredTables returns the tables with a stored baseline.
func (s *DriftService) MonitoredTables(ctx context.Context) ([]string, error) {
	return s.snapshots.MonitoredTables(ctx)
}
