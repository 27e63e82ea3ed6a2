package client_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamReducer(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	tests := []struct {
		name        string
		events      []generation.Event
		wantState   client.StreamState
		wantContent string
		wantErr     error
		wantMessage string
	}{
		{
			name: "tokens then complete",
			events: []generation.Event{
				generation.TokenEvent("A"), generation.TokenEvent("B"), generation.TokenEvent("C"),
				generation.CompleteEvent(taskID),
			},
			wantState:   client.StreamDone,
			wantContent: "ABC",
		},
		{
			name: "error after partial output",
			events: []generation.Event{
				generation.TokenEvent("A"), generation.ErrorEvent("timeout"),
			},
			wantState:   client.StreamFailed,
			wantContent: "A",
			wantMessage: "timeout",
		},
		{
			name:        "error without message",
			events:      []generation.Event{{Type: generation.EventError}},
			wantState:   client.StreamFailed,
			wantMessage: "unknown error",
		},
		{
			name: "events after terminal ignored",
			events: []generation.Event{
				generation.CompleteEvent(taskID), generation.TokenEvent("late"), generation.ErrorEvent("late"),
			},
			wantState: client.StreamDone,
		},
		{
			name:        "truncated stream",
			events:      []generation.Event{generation.TokenEvent("A")},
			wantState:   client.StreamOpen,
			wantContent: "A",
			wantErr:     client.ErrStreamTruncated,
		},
		{
			name:      "unknown event types skipped",
			events:    []generation.Event{{Type: "ping"}, generation.CompleteEvent(taskID)},
			wantState: client.StreamDone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var seen []string
			r := client.StreamReducer{OnToken: func(s string) { seen = append(seen, s) }}
			err := r.Consume(slices.Values(tc.events))

			assert.Equal(t, tc.wantState, r.State())
			assert.Equal(t, tc.wantContent, r.Content())
			assert.Equal(t, tc.wantContent, strings.Join(seen, ""))
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantMessage != "":
				var failed *client.TaskFailedError
				require.ErrorAs(t, err, &failed)
				assert.Equal(t, tc.wantMessage, failed.Message)
			default:
				require.NoError(t, err)
				assert.Equal(t, taskID.String(), r.TaskID())
			}
		})
	}
}

func TestOpenStreamParsesEvents(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Task-ID", taskID.String())
		fmt.Fprint(w, ": comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"content\":\"Hel\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"content\":\"lo\"}\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"complete\",\"task_id\":%q}\n\n", taskID)
	}))
	t.Cleanup(srv.Close)

	api, err := client.NewAPIClient(srv.URL, waitFor)
	require.NoError(t, err)

	s, err := api.OpenStream(context.Background(), uuid.New(), domain.TaskTypeScript, client.LaunchOptions{
		Override: true,
		Params:   map[string]string{"length": "short"},
	})
	require.NoError(t, err)
	assert.Equal(t, taskID, s.TaskID)
	assert.Equal(t, "length=short&override=true", gotQuery)

	var r client.StreamReducer
	require.NoError(t, r.Consume(s.Events()))
	assert.Equal(t, "Hello", r.Content())

	var again int
	for range s.Events() {
		again++
	}
	assert.Zero(t, again, "event sequence is single use")
	assert.NoError(t, s.Close())
}

func TestOpenStreamMalformedEvent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"token\",\"content\":\"A\"}\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	t.Cleanup(srv.Close)

	api, err := client.NewAPIClient(srv.URL, waitFor)
	require.NoError(t, err)
	s, err := api.OpenStream(context.Background(), uuid.New(), domain.TaskTypeSummary, client.LaunchOptions{})
	require.NoError(t, err)

	var r client.StreamReducer
	err = r.Consume(s.Events())
	var failed *client.TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "malformed stream event", failed.Message)
	assert.Equal(t, "A", r.Content())
}

func TestOpenStreamRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"Prerequisite stage has not completed","trace_id":"abc"}`)
	}))
	t.Cleanup(srv.Close)

	api, err := client.NewAPIClient(srv.URL, waitFor)
	require.NoError(t, err)
	_, err = api.OpenStream(context.Background(), uuid.New(), domain.TaskTypeScript, client.LaunchOptions{})

	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "Prerequisite stage has not completed", se.Message)
	assert.Equal(t, "abc", se.TraceID)
}
