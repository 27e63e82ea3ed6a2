// Package main implements the entry point for the audiopaper API server,
// which records document processing tasks, runs them in the background and
// reports their progress over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version, reset) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *migrateCmd, flag.Args()); err != nil {
		log.Fatalf("audiopaper-api: %v", err)
	}
}

// run loads configuration, then either executes a migration command or
// serves the API until ctx is cancelled.
func run(ctx context.Context, migrateCmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database", cfg.Database.URL != "",
		"gemini", cfg.LLM.GeminiAPIKey != "",
		"ragflow", cfg.Ragflow.URL != "")

	if err := domain.ValidateTaskCatalog(); err != nil {
		return fmt.Errorf("invalid task catalog: %w", err)
	}

	if migrateCmd != "" {
		return migrate(ctx, cfg, l, migrateCmd, args)
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

func migrate(ctx context.Context, cfg *config.Config, l *slog.Logger, command string, args []string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("migrations require database.url")
	}
	db, err := openDatabase(ctx, cfg.Database, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			l.Error("Error closing database connection", "error", err)
		}
	}()

	l.Info("Executing migrations", "command", command)
	return postgres.Migrate(ctx, db, l, command, args...)
}
