package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/require"

	"pipemedic/internal/db"
	"pipemedic/internal/db/repository"
	"pipemedic/internal/domain"
	"pipemedic/internal/modelstore"
)

// fakeWarehouse is a steerable in-memory warehouse for service tests.
type fakeWarehouse struct {
	columns  map[string][]domain.SchemaColumn
	measures map[string]float64 // keyed by check name
	result   *domain.QueryResult
	queryErr error
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		columns:  make(map[string][]domain.SchemaColumn),
		measures: make(map[string]float64),
	}
}

func (f *fakeWarehouse) ObservedColumns(_ context.Context, table string) ([]domain.SchemaColumn, error) {
	return f.columns[table], nil
}

func (f *fakeWarehouse) Measure(_ context.Context, check *domain.QualityCheck) (float64, error) {
	return f.measures[check.Name], nil
}

func (f *fakeWarehouse) Query(_ context.Context, _ string, limit int) (*domain.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.result != nil {
		res := *f.result
		if len(res.Rows) > limit {
			res.Rows = res.Rows[:limit]
			res.Truncated = true
		}
		res.RowCount = len(res.Rows)
		return &res, nil
	}
	return &domain.QueryResult{Columns: []string{"n"}, Rows: [][]interface{}{{int64(1)}}, RowCount: 1}, nil
}

func (f *fakeWarehouse) setColumns(table string, names ...string) {
	cols := make([]domain.SchemaColumn, 0, len(names))
	for i, n := range names {
		cols = append(cols, domain.SchemaColumn{
			TableName: table, ColumnName: n, DataType: "VARCHAR",
			IsNullable: true, OrdinalPosition: i + 1,
		})
	}
	f.columns[table] = cols
}

type fakeBuilder struct {
	success bool
	output  string
	calls   int
}

func (f *fakeBuilder) Build(_ context.Context, _ string) (*domain.BuildResult, error) {
	f.calls++
	return &domain.BuildResult{Success: f.success, Output: f.output}, nil
}

type fakeReasoner struct {
	proposal   *domain.FixProposal
	proposeErr error
	narrative  string
	chatReply  string
	chatErr    error
	resets     int
}

func (f *fakeReasoner) Chat(_ context.Context, _ string) (string, error) {
	return f.chatReply, f.chatErr
}

func (f *fakeReasoner) Reset() { f.resets++ }

func (f *fakeReasoner) Narrate(_ context.Context, _ *domain.Diagnosis, _ *domain.Alert) (string, error) {
	return f.narrative, nil
}

func (f *fakeReasoner) ProposeFix(_ context.Context, _ *domain.Diagnosis, target, _ string) (*domain.FixProposal, error) {
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	if f.proposal != nil {
		return f.proposal, nil
	}
	return &domain.FixProposal{
		Target:     target,
		NewContent: "select order_id, amount, discount_amount from raw.orders",
		Summary:    "add the new column to the projection",
		Risk:       "LOW",
		Confidence: 0.8,
	}, nil
}

// harness wires real SQLite repositories, a file model store, and fakes for
// the warehouse, builder, and reasoning collaborator.
type harness struct {
	pipelines *repository.PipelineRepo
	runs      *repository.RunRepo
	checks    *repository.QualityRepo
	actions   *repository.ActionRepo
	warehouse *fakeWarehouse
	builder   *fakeBuilder
	reasoner  *fakeReasoner
	models    *modelstore.Store

	registry *RegistryService
	ledger   *LedgerService
	drift    *DriftService
	quality  *QualityService
	audit    *AuditService
	sandbox  *SandboxService
	fix      *FixService
	incident *IncidentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	writeDB, readDB := db.OpenTestSQLite(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	modelRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(modelRoot, "staging"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(modelRoot, "marts"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(modelRoot, "staging", "stg_orders.sql"),
		[]byte("select order_id, amount from raw.orders"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(modelRoot, "marts", "mart_revenue_daily.sql"),
		[]byte("select date, sum(amount) from stg_orders group by 1"), 0o644))
	models, err := modelstore.New(modelRoot)
	require.NoError(t, err)

	h := &harness{
		pipelines: repository.NewPipelineRepo(writeDB, readDB),
		runs:      repository.NewRunRepo(writeDB, readDB),
		checks:    repository.NewQualityRepo(writeDB, readDB),
		actions:   repository.NewActionRepo(writeDB, readDB),
		warehouse: newFakeWarehouse(),
		builder:   &fakeBuilder{success: true, output: "build ok"},
		reasoner:  &fakeReasoner{narrative: "the projection references a column missing upstream"},
		models:    models,
	}
	h.registry = NewRegistryService(h.pipelines, h.runs)
	h.ledger = NewLedgerService(h.pipelines, h.runs)
	snapshots := repository.NewSchemaSnapshotRepo(writeDB, readDB)
	h.drift = NewDriftService(h.warehouse, snapshots, logger)
	h.quality = NewQualityService(h.checks, h.pipelines, h.warehouse, logger)
	h.audit = NewAuditService(h.actions)
	h.sandbox = NewSandboxService(h.warehouse, h.audit, logger)
	h.fix = NewFixService(h.models, h.builder, h.audit, logger)
	h.incident = NewIncidentService(h.registry, h.runs, h.drift, h.quality, h.fix, h.audit, h.models, h.reasoner, logger)
	return h
}

func (h *harness) registerPipeline(t *testing.T, name string, slaMinutes int) *domain.Pipeline {
	t.Helper()
	p, err := h.registry.Register(context.Background(), &domain.RegisterPipelineRequest{
		Name:       name,
		Schedule:   "0 2 * * *",
		SLAMinutes: slaMinutes,
		Owner:      "data-eng",
	})
	require.NoError(t, err)
	return p
}
