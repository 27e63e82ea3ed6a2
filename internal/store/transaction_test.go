package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/phrazzld/audiopaper-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openCounterDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE counters (n INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM counters`).Scan(&n))
	return n
}

func insert(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO counters (n) VALUES (1)`)
	return err
}

func TestRunInTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		t.Parallel()
		db := openCounterDB(t)
		require.NoError(t, store.RunInTransaction(ctx, db, insert))
		assert.Equal(t, 1, countRows(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		t.Parallel()
		db := openCounterDB(t)
		boom := errors.New("boom")
		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			require.NoError(t, insert(ctx, tx))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, countRows(t, db))
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		t.Parallel()
		db := openCounterDB(t)
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
				require.NoError(t, insert(ctx, tx))
				panic("kaboom")
			})
		})
		assert.Zero(t, countRows(t, db))
	})
}
