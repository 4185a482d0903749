package db

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN_Write(t *testing.T) {
	dsn := buildDSN("/tmp/meta.sqlite", "write")

	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/meta.sqlite?"))
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_synchronous=NORMAL")
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestBuildDSN_Read(t *testing.T) {
	dsn := buildDSN("/tmp/meta.sqlite", "read")

	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.NotContains(t, dsn, "_txlock")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "meta.sqlite"), "readwrite", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLitePair_PoolSizing(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "meta.sqlite"), 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		readDB.Close()
		writeDB.Close()
	})

	// Writes serialize on a single connection; reads fan out.
	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, 4, readDB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, writeDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", strings.ToLower(journalMode))
}

func TestOpenTestSQLite_MigratesMetastore(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	// The migrated schema is visible through both pools.
	for _, conn := range []*sql.DB{writeDB, readDB} {
		var n int
		err := conn.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type = 'table' AND name IN
				('pipelines', 'dependencies', 'pipeline_runs', 'schema_snapshots',
				 'quality_checks', 'quality_results', 'agent_actions')`).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	}

	_, err := writeDB.Exec(`
		INSERT INTO pipelines (id, name, schedule, sla_minutes, owner)
		VALUES ('p1', 'stg_orders', '0 2 * * *', 30, 'data-eng')`)
	require.NoError(t, err)

	var name string
	require.NoError(t, readDB.QueryRow(`SELECT name FROM pipelines`).Scan(&name))
	assert.Equal(t, "stg_orders", name)
}
