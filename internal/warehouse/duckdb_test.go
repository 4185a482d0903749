package warehouse

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipemedic/internal/domain"
)

func setupWarehouse(t *testing.T) *DuckDB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE stg_orders (
			order_id INTEGER,
			customer_id INTEGER,
			amount DOUBLE,
			updated_at TIMESTAMP
		)`)
	require.NoError(t, err)
	_, err = db.Exec(`
		INSERT INTO stg_orders VALUES
			(1, 10, 19.99, now()),
			(2, 10, 5.00, now()),
			(3, NULL, 7.50, now()),
			(4, 11, 0.99, now())`)
	require.NoError(t, err)

	return New(db)
}

func colPtr(s string) *string { return &s }

func TestObservedColumns(t *testing.T) {
	wh := setupWarehouse(t)

	cols, err := wh.ObservedColumns(context.Background(), "stg_orders")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, "order_id", cols[0].ColumnName)
	assert.Equal(t, 1, cols[0].OrdinalPosition)
	assert.Equal(t, "updated_at", cols[3].ColumnName)

	missing, err := wh.ObservedColumns(context.Background(), "ghost_table")
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = wh.ObservedColumns(context.Background(), "stg_orders; DROP TABLE x")
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestMeasure(t *testing.T) {
	wh := setupWarehouse(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		check domain.QualityCheck
		want  float64
	}{
		{
			name: "null percent",
			check: domain.QualityCheck{
				CheckType: domain.CheckTypeNullPercent, TargetTable: "stg_orders",
				TargetColumn: colPtr("customer_id"),
			},
			want: 25,
		},
		{
			name: "row count",
			check: domain.QualityCheck{
				CheckType: domain.CheckTypeRowCount, TargetTable: "stg_orders",
			},
			want: 4,
		},
		{
			name: "duplicate count",
			check: domain.QualityCheck{
				CheckType: domain.CheckTypeDuplicateCount, TargetTable: "stg_orders",
				TargetColumn: colPtr("customer_id"),
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := wh.Measure(ctx, &tt.check)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, actual, 0.0001)
		})
	}
}

func TestMeasureFreshness(t *testing.T) {
	wh := setupWarehouse(t)

	actual, err := wh.Measure(context.Background(), &domain.QualityCheck{
		CheckType: domain.CheckTypeFreshness, TargetTable: "stg_orders",
		TargetColumn: colPtr("updated_at"),
	})
	require.NoError(t, err)
	// Rows were just inserted, so the age is near zero hours.
	assert.Less(t, actual, 1.0)
	assert.GreaterOrEqual(t, actual, 0.0)
}

func TestMeasureValidation(t *testing.T) {
	wh := setupWarehouse(t)
	ctx := context.Background()
	var validation *domain.ValidationError

	_, err := wh.Measure(ctx, &domain.QualityCheck{
		CheckType: domain.CheckTypeNullPercent, TargetTable: "stg_orders",
	})
	assert.ErrorAs(t, err, &validation)

	_, err = wh.Measure(ctx, &domain.QualityCheck{
		CheckType: "weird_check", TargetTable: "stg_orders",
	})
	assert.ErrorAs(t, err, &validation)

	_, err = wh.Measure(ctx, &domain.QualityCheck{
		CheckType: domain.CheckTypeRowCount, TargetTable: "stg_orders WHERE 1=1",
	})
	assert.ErrorAs(t, err, &validation)
}

func TestQueryTruncation(t *testing.T) {
	wh := setupWarehouse(t)
	ctx := context.Background()

	res, err := wh.Query(ctx, "SELECT order_id FROM stg_orders ORDER BY order_id", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id"}, res.Columns)
	assert.Equal(t, 4, res.RowCount)
	assert.False(t, res.Truncated)

	res, err = wh.Query(ctx, "SELECT order_id FROM stg_orders ORDER BY order_id", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestQueryExecutionError(t *testing.T) {
	wh := setupWarehouse(t)

	_, err := wh.Query(context.Background(), "SELECT nope FROM stg_orders", 100)
	var execErr *domain.ExecutionError
	assert.ErrorAs(t, err, &execErr)
}
