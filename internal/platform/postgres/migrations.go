package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// slogGooseLogger adapts the goose logger interface to use slog
type slogGooseLogger struct {
	log *slog.Logger
}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...))
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error.
// Unlike the standard Fatalf behavior, this does NOT call os.Exit; the error is
// returned to the caller instead.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

// Migrate runs a goose command (up, down, status, version, reset) against db
// using the migrations embedded in this package.
func Migrate(ctx context.Context, db *sql.DB, log *slog.Logger, command string, args ...string) error {
	if log == nil {
		log = slog.Default()
	}
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(&slogGooseLogger{log: log.With("component", "migrations")})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, "migrations", args...); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}
