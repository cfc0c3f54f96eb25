package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), name+".db"), Name: name})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_CreatesResultsTables(t *testing.T) {
	db := newDB(t, "results")
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate(), "migrating twice must be a no-op")

	for _, table := range []string{"runs", "daily_totals", "ledger_entries", "executions"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrate_UnknownName(t *testing.T) {
	db := newDB(t, "scratch")
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := newDB(t, "scratch")
	_, err := db.Conn().Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t VALUES (1)"); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var n int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 0, n)

	require.NoError(t, WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t VALUES (1)")
		return err
	}))
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error { panic("bad") })
	assert.ErrorContains(t, err, "panic in transaction")
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newDB(t, "results")
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageSize, int64(0))
	assert.Equal(t, "results", db.Name())
}
