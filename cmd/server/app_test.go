package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApplication(t *testing.T, mutate func(*config.Config)) *application {
	t.Helper()

	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)
	cfg.LLM.GeminiAPIKey = ""
	cfg.Database.URL = ""
	cfg.Ragflow.URL = ""
	if mutate != nil {
		mutate(cfg)
	}

	log, _ := logger.NewTestLogger(t)
	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NoError(t, app.executor.Start(context.Background()))
	t.Cleanup(app.cleanup)
	return app
}

func TestHealth(t *testing.T) {
	t.Parallel()
	app := newTestApplication(t, nil)

	rec := httptest.NewRecorder()
	app.setupRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestSetupOperations(t *testing.T) {
	t.Parallel()

	t.Run("nothing configured", func(t *testing.T) {
		app := newTestApplication(t, nil)
		assert.Empty(t, app.operations.Registered())
	})

	t.Run("ragflow configured", func(t *testing.T) {
		app := newTestApplication(t, func(cfg *config.Config) {
			cfg.Ragflow.URL = "http://ragflow.invalid"
			cfg.Ragflow.APIKey = "ragflow-test"
		})
		assert.Equal(t, []domain.TaskType{domain.TaskTypeIngestSync}, app.operations.Registered())
	})
}

// TestLaunchUsesPublicURL exercises the wired stack end to end through the
// router: document creation, then a launch whose status_url carries the
// configured public prefix.
func TestLaunchUsesPublicURL(t *testing.T) {
	t.Parallel()
	app := newTestApplication(t, func(cfg *config.Config) {
		cfg.Server.PublicURL = "https://audiopaper.example/"
	})
	router := app.setupRouter()

	body, _ := json.Marshal(map[string]string{"filename": "paper.pdf", "text": "some text"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/summary/"+created.ID, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var launched struct {
		TaskID    string `json:"task_id"`
		StatusURL string `json:"status_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &launched))
	assert.Equal(t, "https://audiopaper.example/tasks/"+launched.TaskID+"/status", launched.StatusURL)
}

func TestExecutorConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFrom(t.TempDir())
	require.NoError(t, err)

	got := executorConfig(cfg.Task)
	assert.Equal(t, cfg.Task.WorkerCount, got.WorkerCount)
	assert.Equal(t, cfg.Task.QueueSize, got.QueueSize)
	assert.Equal(t, cfg.Task.Timeout, got.Timeout)
	assert.Equal(t, cfg.Task.StuckTaskAge, got.StuckTaskAge)
	assert.Equal(t, cfg.Task.StuckCheckInterval, got.StuckTaskCheckInterval)
}
