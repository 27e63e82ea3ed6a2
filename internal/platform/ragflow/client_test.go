package ragflow_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/audiopaper-api/internal/config"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/platform/ragflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, url string, pageSize int) *ragflow.Client {
	t.Helper()
	c, err := ragflow.NewClient(config.RagflowConfig{
		URL:        url,
		APIKey:     "secret",
		PageSize:   pageSize,
		MaxRetries: 2,
		Timeout:    5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func chunkPage(chunks []ragflow.Chunk, total int) []byte {
	body := map[string]any{
		"code": 0,
		"data": map[string]any{"chunks": chunks, "total": total},
	}
	b, _ := json.Marshal(body)
	return b
}

func TestClient_DocumentContent_PaginatesAndOrders(t *testing.T) {
	t.Parallel()

	pages := map[string][]ragflow.Chunk{
		"1": {{ID: "c3", Content: "third", ChunkOrder: 3}, {ID: "c1", Content: "first", ChunkOrder: 1}},
		"2": {{ID: "c2", Content: "second", ChunkOrder: 2}, {ID: "c4", Content: "", ChunkOrder: 4}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/datasets/ds1/documents/doc1/chunks", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("size"))
		_, _ = w.Write(chunkPage(pages[r.URL.Query().Get("page")], 4))
	}))
	t.Cleanup(srv.Close)

	text, err := newClient(t, srv.URL, 2).DocumentContent(context.Background(), "ds1", "doc1")

	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\nthird", text)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(chunkPage([]ragflow.Chunk{{Content: "ok"}}, 1))
	}))
	t.Cleanup(srv.Close)

	text, err := newClient(t, srv.URL, 10).DocumentContent(context.Background(), "ds", "doc")

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such document", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL, 10).DocumentContent(context.Background(), "ds", "doc")

	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	assert.Contains(t, err.Error(), strconv.Itoa(http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RejectsNonZeroCode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":102,"message":"permission denied"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newClient(t, srv.URL, 10).DocumentContent(context.Background(), "ds", "doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestNewClient_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := ragflow.NewClient(config.RagflowConfig{}, slog.Default())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

type staticSource struct {
	text string
	err  error
}

func (s staticSource) DocumentContent(ctx context.Context, datasetID, documentID string) (string, error) {
	return s.text, s.err
}

func TestIngestOperation(t *testing.T) {
	t.Parallel()

	doc, err := domain.NewRagflowDocument("paper.pdf", "ds", "doc")
	require.NoError(t, err)

	art, err := ragflow.NewIngestOperation(staticSource{text: "body"}).
		Invoke(context.Background(), generation.Input{Document: *doc}, nil)
	require.NoError(t, err)
	assert.Equal(t, "body", art.Content)
	assert.Equal(t, "ragflow:ds/doc", art.ResultRef())

	_, err = ragflow.NewIngestOperation(staticSource{text: "  "}).
		Invoke(context.Background(), generation.Input{Document: *doc}, nil)
	assert.ErrorIs(t, err, generation.ErrEmptyInput)

	local, err := domain.NewDocument("notes.txt", "text")
	require.NoError(t, err)
	_, err = ragflow.NewIngestOperation(staticSource{text: "x"}).
		Invoke(context.Background(), generation.Input{Document: *local}, nil)
	assert.ErrorIs(t, err, generation.ErrEmptyInput)
}
