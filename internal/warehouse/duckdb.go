// Package warehouse is the DuckDB data plane: observed table schemas for
// drift detection, quality measurements, and read-only diagnostic execution.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.Warehouse = (*DuckDB)(nil)

// DuckDB implements the warehouse port over a duckdb database/sql handle.
type DuckDB struct {
	db *sql.DB
}

// New wraps an open DuckDB connection.
func New(db *sql.DB) *DuckDB {
	return &DuckDB{db: db}
}

// Open opens a DuckDB database at path ("" for in-memory).
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// Identifiers are interpolated into measurement SQL, so they are restricted
// to plain (optionally schema-qualified) names rather than quoted.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validTable(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return false
		}
	}
	return true
}

// ObservedColumns reads the live column layout of a table from
// information_schema, ordered by ordinal position. An unknown table yields an
// empty slice, not an error.
func (w *DuckDB) ObservedColumns(ctx context.Context, table string) ([]domain.SchemaColumn, error) {
	if !validTable(table) {
		return nil, domain.ErrValidation("invalid table name %q", table)
	}

	name := table
	query := `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_name = ?`
	args := []interface{}{name}
	if schema, rest, ok := strings.Cut(table, "."); ok {
		query += ` AND table_schema = ?`
		args = []interface{}{rest, schema}
		name = rest
	}
	query += ` ORDER BY ordinal_position`

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.ErrExecution(err, "read columns for %s", table)
	}
	defer rows.Close()

	var out []domain.SchemaColumn
	for rows.Next() {
		col := domain.SchemaColumn{TableName: table}
		var nullable string
		if err := rows.Scan(&col.ColumnName, &col.DataType, &nullable, &col.OrdinalPosition); err != nil {
			return nil, err
		}
		col.IsNullable = strings.EqualFold(nullable, "YES")
		out = append(out, col)
	}
	return out, rows.Err()
}

// Measure computes the raw actual value for a quality check. The verdict is
// the evaluator's job; this only produces the number.
func (w *DuckDB) Measure(ctx context.Context, check *domain.QualityCheck) (float64, error) {
	if !validTable(check.TargetTable) {
		return 0, domain.ErrValidation("invalid target table %q", check.TargetTable)
	}
	column := ""
	if check.TargetColumn != nil {
		column = *check.TargetColumn
		if !identPattern.MatchString(column) {
			return 0, domain.ErrValidation("invalid target column %q", column)
		}
	}

	var query string
	switch check.CheckType {
	case domain.CheckTypeNullPercent:
		if column == "" {
			return 0, domain.ErrValidation("null_percent check %q requires a target column", check.Name)
		}
		query = fmt.Sprintf(
			`SELECT COALESCE(100.0 * SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 0) FROM %s`,
			column, check.TargetTable)
	case domain.CheckTypeRowCount:
		query = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, check.TargetTable)
	case domain.CheckTypeFreshness:
		if column == "" {
			return 0, domain.ErrValidation("freshness check %q requires a target column", check.Name)
		}
		query = fmt.Sprintf(
			`SELECT COALESCE(epoch(now() - MAX(%s)) / 3600.0, 0) FROM %s`,
			column, check.TargetTable)
	case domain.CheckTypeDuplicateCount:
		if column == "" {
			return 0, domain.ErrValidation("duplicate_count check %q requires a target column", check.Name)
		}
		query = fmt.Sprintf(
			`SELECT COUNT(%s) - COUNT(DISTINCT %s) FROM %s`,
			column, column, check.TargetTable)
	default:
		return 0, domain.ErrValidation("unknown check type %q", check.CheckType)
	}

	var actual float64
	if err := w.db.QueryRowContext(ctx, query).Scan(&actual); err != nil {
		return 0, domain.ErrExecution(err, "measure %s on %s", check.CheckType, check.TargetTable)
	}
	return actual, nil
}

// Query executes an already-validated read-only statement and returns up to
// limit rows, flagging truncation. Safety filtering is the sandbox's job.
func (w *DuckDB) Query(ctx context.Context, sqlText string, limit int) (*domain.QueryResult, error) {
	rows, err := w.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, domain.ErrExecution(err, "execute query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &domain.QueryResult{Columns: cols, Rows: [][]interface{}{}}
	for rows.Next() {
		if len(result.Rows) >= limit {
			result.Truncated = true
			break
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Convert byte slices to strings for JSON serialization
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}
