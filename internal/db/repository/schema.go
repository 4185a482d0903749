package repository

import (
	"context"
	"database/sql"
	"time"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.SchemaSnapshotRepository = (*SchemaSnapshotRepo)(nil)

// SchemaSnapshotRepo stores per-table column layout generations on SQLite.
type SchemaSnapshotRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewSchemaSnapshotRepo creates a new SchemaSnapshotRepo.
func NewSchemaSnapshotRepo(writeDB, readDB *sql.DB) *SchemaSnapshotRepo {
	return &SchemaSnapshotRepo{write: writeDB, read: readDB}
}

// Replace swaps the stored generation for the table in one transaction, so
// readers never observe an intermediate empty state.
func (r *SchemaSnapshotRepo) Replace(ctx context.Context, table string, columns []domain.SchemaColumn) error {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return mapDBError(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_snapshots WHERE table_name = ?`, table); err != nil {
		return mapDBError(err)
	}

	now := time.Now().UTC()
	for _, c := range columns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_snapshots (table_name, column_name, data_type, is_nullable, ordinal_position, captured_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			table, c.ColumnName, c.DataType, boolToInt(c.IsNullable), c.OrdinalPosition, now,
		); err != nil {
			return mapDBError(err)
		}
	}

	return tx.Commit()
}

// Get returns the snapshot columns for a table ordered by ordinal position.
// A missing snapshot returns an empty slice, not an error: absence of a
// baseline is a valid state.
func (r *SchemaSnapshotRepo) Get(ctx context.Context, table string) ([]domain.SchemaColumn, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable, ordinal_position
		FROM schema_snapshots
		WHERE table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.SchemaColumn
	for rows.Next() {
		var c domain.SchemaColumn
		var nullable int64
		if err := rows.Scan(&c.TableName, &c.ColumnName, &c.DataType, &nullable, &c.OrdinalPosition); err != nil {
			return nil, err
		}
		c.IsNullable = nullable != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// MonitoredTables returns the distinct snapshotted table names, ordered.
func (r *SchemaSnapshotRepo) MonitoredTables(ctx context.Context) ([]string, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT DISTINCT table_name FROM schema_snapshots ORDER BY table_name`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
