package repository

import (
	"context"
	"database/sql"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.QualityRepository = (*QualityRepo)(nil)

// QualityRepo stores quality check definitions and their append-only results.
type QualityRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewQualityRepo creates a new QualityRepo.
func NewQualityRepo(writeDB, readDB *sql.DB) *QualityRepo {
	return &QualityRepo{write: writeDB, read: readDB}
}

const checkColumns = "id, pipeline_id, name, check_type, target_table, target_column, threshold_type, threshold_value, is_active"

func scanCheck(row interface{ Scan(...interface{}) error }) (*domain.QualityCheck, error) {
	var c domain.QualityCheck
	var column sql.NullString
	var active int64
	if err := row.Scan(&c.ID, &c.PipelineID, &c.Name, &c.CheckType, &c.TargetTable,
		&column, &c.ThresholdType, &c.ThresholdValue, &active); err != nil {
		return nil, err
	}
	c.TargetColumn = stringPtr(column)
	c.IsActive = active != 0
	return &c, nil
}

// CreateCheck inserts a check definition.
func (r *QualityRepo) CreateCheck(ctx context.Context, c *domain.QualityCheck) (*domain.QualityCheck, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	id := domain.NewID()
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO quality_checks (`+checkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.PipelineID, c.Name, c.CheckType, c.TargetTable, nullString(c.TargetColumn),
		c.ThresholdType, c.ThresholdValue, boolToInt(true),
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetCheck(ctx, id)
}

// GetCheck returns a check by ID.
func (r *QualityRepo) GetCheck(ctx context.Context, id string) (*domain.QualityCheck, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM quality_checks WHERE id = ?`, id)
	c, err := scanCheck(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("quality check %s not found", id)
		}
		return nil, mapDBError(err)
	}
	return c, nil
}

// GetCheckByName returns a check by its unique name.
func (r *QualityRepo) GetCheckByName(ctx context.Context, name string) (*domain.QualityCheck, error) {
	row := r.read.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM quality_checks WHERE name = ?`, name)
	c, err := scanCheck(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("quality check %q not found", name)
		}
		return nil, mapDBError(err)
	}
	return c, nil
}

// ListActiveChecks returns the active checks for a pipeline ordered by name.
func (r *QualityRepo) ListActiveChecks(ctx context.Context, pipelineID string) ([]domain.QualityCheck, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+checkColumns+` FROM quality_checks WHERE pipeline_id = ? AND is_active = 1 ORDER BY name`,
		pipelineID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.QualityCheck
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// InsertResult appends a result record.
func (r *QualityRepo) InsertResult(ctx context.Context, res *domain.QualityResult) (*domain.QualityResult, error) {
	id := res.ID
	if id == "" {
		id = domain.NewID()
	}
	details := res.Details
	if details == "" {
		details = "{}"
	}
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO quality_results (id, check_id, run_id, status, actual_value, expected_value, checked_at, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.CheckID, nullString(res.RunID), res.Status, res.ActualValue,
		res.ExpectedValue, res.CheckedAt.UTC(), details,
	)
	if err != nil {
		return nil, mapDBError(err)
	}

	row := r.read.QueryRowContext(ctx, `
		SELECT id, check_id, run_id, status, actual_value, expected_value, checked_at, details
		FROM quality_results WHERE id = ?`, id)
	return scanResult(row)
}

func scanResult(row interface{ Scan(...interface{}) error }) (*domain.QualityResult, error) {
	var res domain.QualityResult
	var runID sql.NullString
	if err := row.Scan(&res.ID, &res.CheckID, &runID, &res.Status,
		&res.ActualValue, &res.ExpectedValue, &res.CheckedAt, &res.Details); err != nil {
		return nil, mapDBError(err)
	}
	res.RunID = stringPtr(runID)
	return &res, nil
}

// CurrentResults left-joins each active check for the pipeline to its most
// recent result. Checks never evaluated appear with a nil result, not as
// failures.
func (r *QualityRepo) CurrentResults(ctx context.Context, pipelineID string) ([]domain.CheckWithResult, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT c.id, c.pipeline_id, c.name, c.check_type, c.target_table, c.target_column,
		       c.threshold_type, c.threshold_value, c.is_active,
		       q.id, q.check_id, q.run_id, q.status, q.actual_value, q.expected_value, q.checked_at, q.details
		FROM quality_checks c
		LEFT JOIN quality_results q ON q.id = (
			SELECT q2.id FROM quality_results q2
			WHERE q2.check_id = c.id
			ORDER BY q2.checked_at DESC
			LIMIT 1
		)
		WHERE c.pipeline_id = ? AND c.is_active = 1
		ORDER BY c.name`, pipelineID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.CheckWithResult
	for rows.Next() {
		var c domain.QualityCheck
		var column sql.NullString
		var active int64
		var resID, resCheckID, resRunID, resStatus, resDetails sql.NullString
		var actual, expected sql.NullFloat64
		var checkedAt sql.NullTime

		if err := rows.Scan(&c.ID, &c.PipelineID, &c.Name, &c.CheckType, &c.TargetTable,
			&column, &c.ThresholdType, &c.ThresholdValue, &active,
			&resID, &resCheckID, &resRunID, &resStatus, &actual, &expected, &checkedAt, &resDetails,
		); err != nil {
			return nil, err
		}
		c.TargetColumn = stringPtr(column)
		c.IsActive = active != 0

		item := domain.CheckWithResult{Check: c}
		if resID.Valid {
			item.Result = &domain.QualityResult{
				ID:            resID.String,
				CheckID:       resCheckID.String,
				RunID:         stringPtr(resRunID),
				Status:        resStatus.String,
				ActualValue:   actual.Float64,
				ExpectedValue: expected.Float64,
				CheckedAt:     checkedAt.Time,
				Details:       resDetails.String,
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// PipelinesWithChecks returns names of pipelines carrying active checks with
// their check counts.
func (r *QualityRepo) PipelinesWithChecks(ctx context.Context) (map[string]int64, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT p.name, COUNT(c.id)
		FROM quality_checks c
		JOIN pipelines p ON p.id = c.pipeline_id
		WHERE c.is_active = 1
		GROUP BY p.name
		ORDER BY p.name`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out[name] = count
	}
	return out, rows.Err()
}
