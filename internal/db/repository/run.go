package repository

import (
	"context"
	"database/sql"
	"time"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.RunRepository = (*RunRepo)(nil)

// RunRepo is the append-only run ledger on SQLite.
type RunRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(writeDB, readDB *sql.DB) *RunRepo {
	return &RunRepo{write: writeDB, read: readDB}
}

const runColumns = "id, pipeline_id, status, started_at, completed_at, duration_seconds, row_count, error_message"

func scanRun(row interface{ Scan(...interface{}) error }) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var completedAt sql.NullTime
	var duration, rowCount sql.NullInt64
	var errMsg sql.NullString
	if err := row.Scan(&run.ID, &run.PipelineID, &run.Status, &run.StartedAt,
		&completedAt, &duration, &rowCount, &errMsg); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.DurationSeconds = int64Ptr(duration)
	run.RowCount = int64Ptr(rowCount)
	run.ErrorMessage = stringPtr(errMsg)
	return &run, nil
}

// StartRun appends a run in running state.
func (r *RunRepo) StartRun(ctx context.Context, pipelineID string, startedAt time.Time) (*domain.PipelineRun, error) {
	id := domain.NewID()
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, pipeline_id, status, started_at) VALUES (?, ?, ?, ?)`,
		id, pipelineID, domain.RunStatusRunning, startedAt.UTC(),
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.get(ctx, id)
}

// CompleteRun finalizes a run exactly once. The guard is in the WHERE clause:
// the update only matches a run still in running state, so a second
// completion affects zero rows and fails with InvalidTransitionError.
func (r *RunRepo) CompleteRun(ctx context.Context, runID, status string, completedAt time.Time, rowCount *int64, errorMessage *string) (*domain.PipelineRun, error) {
	if status != domain.RunStatusSuccess && status != domain.RunStatusFailed {
		return nil, domain.ErrValidation("completion status must be success or failed, got %q", status)
	}

	run, err := r.get(ctx, runID)
	if err != nil {
		return nil, err
	}
	duration := int64(completedAt.Sub(run.StartedAt).Seconds())

	res, err := r.write.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, completed_at = ?, duration_seconds = ?, row_count = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		status, completedAt.UTC(), duration, nullInt64(rowCount), nullString(errorMessage),
		runID, domain.RunStatusRunning,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrInvalidTransition("run %s is already completed", runID)
	}
	return r.get(ctx, runID)
}

// InsertRun appends a fully-formed run record.
func (r *RunRepo) InsertRun(ctx context.Context, run *domain.PipelineRun) (*domain.PipelineRun, error) {
	id := run.ID
	if id == "" {
		id = domain.NewID()
	}
	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO pipeline_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.PipelineID, run.Status, run.StartedAt.UTC(), completedAt,
		nullInt64(run.DurationSeconds), nullInt64(run.RowCount), nullString(run.ErrorMessage),
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.get(ctx, id)
}

// Latest returns the run with the greatest started_at, or nil if none exists.
func (r *RunRepo) Latest(ctx context.Context, pipelineID string) (*domain.PipelineRun, error) {
	row := r.read.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs
		WHERE pipeline_id = ?
		ORDER BY started_at DESC
		LIMIT 1`, pipelineID)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, mapDBError(err)
	}
	return run, nil
}

// History returns the limit most recent runs, most recent first. limit must
// be at least 1; the ledger itself enforces no upper bound.
func (r *RunRepo) History(ctx context.Context, pipelineID string, limit int) ([]domain.PipelineRun, error) {
	if limit < 1 {
		return nil, domain.ErrValidation("history limit must be at least 1, got %d", limit)
	}

	rows, err := r.read.QueryContext(ctx, `
		SELECT `+runColumns+` FROM pipeline_runs
		WHERE pipeline_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, pipelineID, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// PurgeBefore deletes runs started before the cutoff (retention purge).
func (r *RunRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.write.ExecContext(ctx,
		`DELETE FROM pipeline_runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, mapDBError(err)
	}
	return res.RowsAffected()
}

func (r *RunRepo) get(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("run %s not found", id)
		}
		return nil, mapDBError(err)
	}
	return run, nil
}
