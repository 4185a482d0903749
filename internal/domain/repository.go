package domain

import (
	"context"
	"time"
)

// PipelineRepository stores pipeline metadata and the dependency graph.
type PipelineRepository interface {
	Register(ctx context.Context, p *Pipeline) (*Pipeline, error)
	Deactivate(ctx context.Context, name string) error
	GetByName(ctx context.Context, name string) (*Pipeline, error)
	GetByID(ctx context.Context, id string) (*Pipeline, error)
	// ListActive returns active pipelines ordered by name.
	ListActive(ctx context.Context) ([]Pipeline, error)
	// AddDependency records that pipeline depends on dependsOn (both by
	// name). Fails with *CycleError if the edge would create a cycle and
	// leaves the graph unchanged.
	AddDependency(ctx context.Context, pipeline, dependsOn string) error
	// Upstream and Downstream return the direct neighbor sets ordered by name.
	Upstream(ctx context.Context, name string) ([]Pipeline, error)
	Downstream(ctx context.Context, name string) ([]Pipeline, error)
}

// RunRepository is the append-only run ledger.
type RunRepository interface {
	// StartRun creates a run in running state and returns it.
	StartRun(ctx context.Context, pipelineID string, startedAt time.Time) (*PipelineRun, error)
	// CompleteRun finalizes a run exactly once. Completing an already
	// completed run fails with *InvalidTransitionError.
	CompleteRun(ctx context.Context, runID, status string, completedAt time.Time, rowCount *int64, errorMessage *string) (*PipelineRun, error)
	// InsertRun appends a fully-formed run record (used by ingestion of
	// external execution events and test fixtures).
	InsertRun(ctx context.Context, run *PipelineRun) (*PipelineRun, error)
	// Latest returns the run with the greatest StartedAt, or nil.
	Latest(ctx context.Context, pipelineID string) (*PipelineRun, error)
	// History returns the limit most recent runs, most recent first.
	History(ctx context.Context, pipelineID string, limit int) ([]PipelineRun, error)
	// PurgeBefore deletes runs started before the cutoff; returns the count.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SchemaSnapshotRepository stores the last known column layout per table.
type SchemaSnapshotRepository interface {
	// Replace atomically swaps the stored generation for the table. Readers
	// never observe an intermediate empty state.
	Replace(ctx context.Context, table string, columns []SchemaColumn) error
	Get(ctx context.Context, table string) ([]SchemaColumn, error)
	// MonitoredTables returns the distinct snapshotted table names, ordered.
	MonitoredTables(ctx context.Context) ([]string, error)
}

// QualityRepository stores check definitions and their append-only results.
type QualityRepository interface {
	CreateCheck(ctx context.Context, c *QualityCheck) (*QualityCheck, error)
	GetCheck(ctx context.Context, id string) (*QualityCheck, error)
	GetCheckByName(ctx context.Context, name string) (*QualityCheck, error)
	ListActiveChecks(ctx context.Context, pipelineID string) ([]QualityCheck, error)
	InsertResult(ctx context.Context, r *QualityResult) (*QualityResult, error)
	// CurrentResults left-joins each active check for the pipeline to its
	// most recent result; never-evaluated checks appear with a nil result.
	CurrentResults(ctx context.Context, pipelineID string) ([]CheckWithResult, error)
	// PipelinesWithChecks returns names of pipelines with at least one
	// active check, with their check counts, ordered by name.
	PipelinesWithChecks(ctx context.Context) (map[string]int64, error)
}

// ActionFilter narrows audit log listings. Empty fields match everything.
type ActionFilter struct {
	Actor      string
	ActionType string
	Since      *time.Time
	Limit      int
}

// ActionRepository is the append-only action audit log.
type ActionRepository interface {
	// Insert appends one immutable entry. Persistence errors propagate to
	// the caller — the log never fails silently.
	Insert(ctx context.Context, a *AgentAction) (*AgentAction, error)
	// Recent returns the most recent entries, newest first.
	Recent(ctx context.Context, filter ActionFilter) ([]AgentAction, error)
	// Patterns aggregates failure-type actions by pipeline and alert type.
	Patterns(ctx context.Context) ([]FailurePattern, error)
	// Clear bulk-deletes all entries. Maintenance tooling only.
	Clear(ctx context.Context) (int64, error)
}
