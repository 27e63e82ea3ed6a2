//go:build integration

// Package testdb connects integration tests to a migrated Postgres database.
// Tests skip when no database URL is configured.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/audiopaper-api/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// Timeout bounds connection and migration work in tests.
const Timeout = 10 * time.Second

var urlVars = []string{"DATABASE_URL", "AUDIOPAPER_DATABASE_URL"}

// URL returns the first database URL set in the environment.
func URL() string {
	for _, name := range urlVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Open connects to the test database, migrating it once per test binary.
// The connection is closed when t finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := URL()
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "ping test database")

	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(ctx, db, nil, "up")
	})
	require.NoError(t, migrateErr, "migrate test database")
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, so the
// test leaves no rows behind.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("rollback test transaction: %v", err)
		}
	}()
	fn(t, tx)
}
