package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/audiopaper-api/internal/api"
	apiMiddleware "github.com/phrazzld/audiopaper-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(app.logger))

	taskHandler := api.NewTaskHandler(app.taskService, app.logger,
		api.WithPublicURL(app.config.Server.PublicURL))
	documentHandler := api.NewDocumentHandler(app.documentService, app.taskService, app.logger)
	api.RegisterRoutes(r, taskHandler, documentHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
