package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipemedic/internal/db"
	"pipemedic/internal/domain"
)

func snapshotCols(table string, names ...string) []domain.SchemaColumn {
	out := make([]domain.SchemaColumn, 0, len(names))
	for i, n := range names {
		out = append(out, domain.SchemaColumn{
			TableName:       table,
			ColumnName:      n,
			DataType:        "VARCHAR",
			IsNullable:      true,
			OrdinalPosition: i + 1,
		})
	}
	return out
}

func TestSchemaSnapshotRepo_ReplaceAndGet(t *testing.T) {
	writeDB, readDB := db.OpenTestSQLite(t)
	repo := NewSchemaSnapshotRepo(writeDB, readDB)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, "stg_orders", snapshotCols("stg_orders", "order_id", "amount")))

	got, err := repo.Get(ctx, "stg_orders")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "order_id", got[0].ColumnName)
	assert.Equal(t, "amount", got[1].ColumnName)

	// Replace swaps the baseline wholesale, it never merges.
	require.NoError(t, repo.Replace(ctx, "stg_orders", snapshotCols("stg_orders", "order_id", "amount", "discount_amount")))
	got, err = repo.Get(ctx, "stg_orders")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "discount_amount", got[2].ColumnName)
}

func TestSchemaSnapshotRepo_GetUnknownTable(t *testing.T) {
	writeDB, readDB := db.OpenTestSQLite(t)
	repo := NewSchemaSnapshotRepo(writeDB, readDB)

	got, err := repo.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSchemaSnapshotRepo_MonitoredTables(t *testing.T) {
	writeDB, readDB := db.OpenTestSQLite(t)
	repo := NewSchemaSnapshotRepo(writeDB, readDB)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, "stg_orders", snapshotCols("stg_orders", "order_id")))
	require.NoError(t, repo.Replace(ctx, "dim_customers", snapshotCols("dim_customers", "customer_id")))

	tables, err := repo.MonitoredTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dim_customers", "stg_orders"}, tables)
}
