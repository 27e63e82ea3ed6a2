package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/platform/gemini"
	"github.com/phrazzld/audiopaper-api/internal/platform/memstore"
	"github.com/phrazzld/audiopaper-api/internal/platform/postgres"
	"github.com/phrazzld/audiopaper-api/internal/platform/ragflow"
	"github.com/phrazzld/audiopaper-api/internal/service"
	"github.com/phrazzld/audiopaper-api/internal/store"
	"github.com/phrazzld/audiopaper-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore     store.TaskStore
	documentStore store.DocumentStore
	operations    *generation.Registry

	executor        *task.Executor
	taskService     service.TaskService
	documentService service.DocumentService
}

// newApplication creates a new application instance with all dependencies
// initialized. An empty database URL selects the in-memory stores.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	ops, err := setupOperations(ctx, cfg, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	app.operations = ops

	app.executor = task.NewExecutor(app.taskStore, app.documentStore, ops, executorConfig(cfg.Task), logger)

	app.taskService, err = service.NewTaskService(app.taskStore, app.documentStore, app.executor, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.documentService, err = service.NewDocumentService(app.documentStore, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create document service: %w", err)
	}

	logger.Info("Application initialized successfully",
		"task_types", ops.Registered())
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	if app.config.Database.URL == "" {
		app.logger.Warn("database.url is empty, using in-memory stores; tasks will not survive a restart")
		docs := memstore.NewDocumentStore()
		app.taskStore = memstore.NewTaskStore(memstore.WithDocuments(docs))
		app.documentStore = docs
		return nil
	}

	db, err := openDatabase(ctx, app.config.Database, app.logger)
	if err != nil {
		return err
	}
	app.db = db
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.documentStore = postgres.NewPostgresDocumentStore(db)
	return nil
}

// setupOperations registers an operation for every task type whose upstream
// is configured. Unconfigured types are rejected when a task of that type runs.
func setupOperations(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*generation.Registry, error) {
	ops := generation.NewRegistry()

	if cfg.LLM.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.LLM.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
		}
		register := map[domain.TaskType]generation.Operation{
			domain.TaskTypeSummary: gemini.NewSummaryOperation(logger, client, cfg.LLM),
			domain.TaskTypeScript:  gemini.NewScriptOperation(logger, client, cfg.LLM),
			domain.TaskTypeAudio:   gemini.NewAudioOperation(logger, client, cfg.LLM, cfg.Storage.AudioDir),
		}
		for taskType, op := range register {
			if err := ops.Register(taskType, op); err != nil {
				return nil, err
			}
		}
	} else {
		logger.Warn("llm.gemini_api_key is empty, generation task types are disabled")
	}

	if cfg.Ragflow.URL != "" {
		client, err := ragflow.NewClient(cfg.Ragflow, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ragflow client: %w", err)
		}
		if err := ops.Register(domain.TaskTypeIngestSync, ragflow.NewIngestOperation(client)); err != nil {
			return nil, err
		}
	}

	return ops, nil
}

func executorConfig(cfg config.TaskConfig) task.Config {
	return task.Config{
		WorkerCount:            cfg.WorkerCount,
		QueueSize:              cfg.QueueSize,
		Timeout:                cfg.Timeout,
		StuckTaskAge:           cfg.StuckTaskAge,
		StuckTaskCheckInterval: cfg.StuckCheckInterval,
	}
}

// Run starts the executor and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.executor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task executor: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.executor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		if err := app.executor.Stop(ctx); err != nil {
			app.logger.Error("Task executor did not stop cleanly", "error", err)
		}
		cancel()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
