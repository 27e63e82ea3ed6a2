package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/api"
	"github.com/phrazzld/audiopaper-api/internal/api/middleware"
	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/platform/memstore"
	"github.com/phrazzld/audiopaper-api/internal/service"
	"github.com/phrazzld/audiopaper-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveServer runs the real HTTP stack over memory stores.
type liveServer struct {
	srv  *httptest.Server
	ops  *generation.Registry
	api  *client.APIClient
	docs *memstore.DocumentStore
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	log, _ := logger.NewTestLogger(t)

	docs, ops := memstore.NewDocumentStore(), generation.NewRegistry()
	tasks := memstore.NewTaskStore(memstore.WithDocuments(docs))
	cfg := task.DefaultConfig()
	cfg.Timeout = time.Second
	exec := task.NewExecutor(tasks, docs, ops, cfg, log)
	require.NoError(t, exec.Start(context.Background()))

	taskSvc, err := service.NewTaskService(tasks, docs, exec, log)
	require.NoError(t, err)
	docSvc, err := service.NewDocumentService(docs, log)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Trace(log))
	api.RegisterRoutes(r, api.NewTaskHandler(taskSvc, log), api.NewDocumentHandler(docSvc, taskSvc, log))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = exec.Stop(ctx)
	})

	apiClient, err := client.NewAPIClient(srv.URL, waitFor)
	require.NoError(t, err)
	return &liveServer{srv: srv, ops: ops, api: apiClient, docs: docs}
}

type launcherHarness struct {
	*liveServer
	handles  *memoryHandles
	outcomes *outcomes
	registry *client.PollerRegistry
	launcher *client.Launcher
}

func newLauncherHarness(t *testing.T) *launcherHarness {
	t.Helper()
	log, _ := logger.NewTestLogger(t)
	h := &launcherHarness{
		liveServer: newLiveServer(t),
		handles:    newMemoryHandles(),
		outcomes:   &outcomes{},
	}
	h.registry = client.NewPollerRegistry(client.RegistryConfig{
		Fetcher:  h.api,
		Handles:  h.handles,
		Interval: 10 * time.Millisecond,
		Notify:   h.outcomes.record,
		Logger:   log,
	})
	t.Cleanup(h.registry.CancelAll)
	h.launcher = client.NewLauncher(h.api, h.handles, h.registry)
	return h
}

func (h *launcherHarness) wait(t *testing.T) client.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.registry.Wait(ctx))
	outs := h.outcomes.list()
	require.NotEmpty(t, outs)
	return outs[len(outs)-1]
}

func TestLaunchAndPollToCompletion(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	release := make(chan struct{})
	require.NoError(t, h.ops.Register(domain.TaskTypeSummary, generation.OperationFunc(
		func(ctx context.Context, in generation.Input, emit generation.EmitFunc) (generation.Artifact, error) {
			<-release
			return generation.Artifact{Content: "a summary"}, nil
		})))

	docID, err := h.api.CreateDocument(context.Background(), "paper.pdf", "text")
	require.NoError(t, err)

	ph, err := h.launcher.Launch(context.Background(), docID, domain.TaskTypeSummary, client.LaunchOptions{})
	require.NoError(t, err)
	assert.Equal(t, h.srv.URL+"/tasks/"+ph.TaskID.String()+"/status", ph.TaskURL)

	stored, err := h.handles.Get(context.Background(), docID)
	require.NoError(t, err, "handle is persisted before completion")
	assert.Equal(t, ph, stored)
	assert.Equal(t, client.PollPolling, h.registry.State(docID))

	close(release)
	out := h.wait(t)

	assert.Equal(t, client.PollResolved, out.State)
	require.NotNil(t, out.Status)
	assert.Equal(t, domain.TaskStatusComplete, out.Status.Status)
	assert.False(t, h.handles.has(docID))

	doc, err := h.docs.Get(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, "a summary", doc.Summary)
}

func TestLaunchFailureThenRetry(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	attempts := 0
	require.NoError(t, h.ops.Register(domain.TaskTypeSummary, generation.OperationFunc(
		func(ctx context.Context, in generation.Input, emit generation.EmitFunc) (generation.Artifact, error) {
			attempts++
			if attempts == 1 {
				return generation.Artifact{}, errors.New("upstream said no")
			}
			return generation.Artifact{Content: "ok"}, nil
		})))

	docID, err := h.api.CreateDocument(context.Background(), "paper.pdf", "text")
	require.NoError(t, err)

	ph, err := h.launcher.Launch(context.Background(), docID, domain.TaskTypeSummary, client.LaunchOptions{})
	require.NoError(t, err)

	out := h.wait(t)
	assert.Equal(t, client.PollFailed, out.State)
	var failed *client.TaskFailedError
	require.ErrorAs(t, out.Err, &failed)
	assert.Contains(t, failed.Message, "upstream said no")
	assert.False(t, h.handles.has(docID))

	retried, err := h.launcher.Retry(context.Background(), ph.TaskID)
	require.NoError(t, err)
	assert.Equal(t, ph.TaskID, retried.TaskID)
	assert.Equal(t, docID, retried.DocumentID)
	assert.Equal(t, domain.TaskTypeSummary, retried.TaskType)

	out = h.wait(t)
	assert.Equal(t, client.PollResolved, out.State)
	assert.Equal(t, 2, out.Status.Attempts)

	_, err = h.launcher.Retry(context.Background(), ph.TaskID)
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
}

func TestLaunchRejected(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	docID, err := h.api.CreateDocument(context.Background(), "paper.pdf", "text")
	require.NoError(t, err)

	_, err = h.launcher.Launch(context.Background(), docID, domain.TaskTypeScript, client.LaunchOptions{})
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.False(t, h.handles.has(docID), "no handle without a launched task")
	assert.Empty(t, h.registry.Active())
}

func TestStatusOfUnknownTask(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	_, err := h.api.Status(context.Background(), h.api.StatusURL(uuid.New()))
	assert.ErrorIs(t, err, client.ErrTaskGone)
}

func TestServerDownSuspends(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	docID, err := h.api.CreateDocument(context.Background(), "paper.pdf", "text")
	require.NoError(t, err)

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	require.NoError(t, h.ops.Register(domain.TaskTypeSummary, generation.OperationFunc(
		func(ctx context.Context, in generation.Input, emit generation.EmitFunc) (generation.Artifact, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return generation.Artifact{}, ctx.Err()
		})))

	_, err = h.launcher.Launch(context.Background(), docID, domain.TaskTypeSummary, client.LaunchOptions{})
	require.NoError(t, err)

	h.srv.CloseClientConnections()
	h.srv.Listener.Close()

	out := h.wait(t)
	assert.Equal(t, client.PollSuspended, out.State)
	assert.ErrorIs(t, out.Err, client.ErrTransport)
	assert.True(t, h.handles.has(docID), "handle kept for resume")
}

func TestStreamAgainstServer(t *testing.T) {
	t.Parallel()
	h := newLauncherHarness(t)

	require.NoError(t, h.ops.Register(domain.TaskTypeSummary, generation.OperationFunc(
		func(ctx context.Context, in generation.Input, emit generation.EmitFunc) (generation.Artifact, error) {
			for _, tok := range []string{"A", "B", "C"} {
				emit(tok)
			}
			return generation.Artifact{Content: "ABC"}, nil
		})))

	docID, err := h.api.CreateDocument(context.Background(), "paper.pdf", "text")
	require.NoError(t, err)

	s, err := h.api.OpenStream(context.Background(), docID, domain.TaskTypeSummary, client.LaunchOptions{})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, s.TaskID)

	var r client.StreamReducer
	require.NoError(t, r.Consume(s.Events()))
	assert.Equal(t, "ABC", r.Content())
	assert.Equal(t, s.TaskID.String(), r.TaskID())

	st, err := h.api.Status(context.Background(), h.api.StatusURL(s.TaskID))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusComplete, st.Status)

	tasks, err := h.api.DocumentTasks(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, s.TaskID, tasks[0].TaskID)
}
