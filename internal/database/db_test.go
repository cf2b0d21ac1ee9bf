package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: "file::memory:?cache=shared", Profile: ProfileStandard, Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"api_keys", "subscriptions", "token_prices", "seen_signatures", "last_signatures", "last_alerts", "state", "rate_limit_usage", "_database_health"}
	for _, table := range tables {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		require.Equal(t, table, name)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t)

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, execErr := tx.Exec("INSERT INTO state (key, value) VALUES ('k', 'v')")
		require.NoError(t, execErr)
		return boom
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM state WHERE key='k'").Scan(&count))
	require.Equal(t, 0, count)
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.HealthCheck(context.Background()))
}
