package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/service"
	"github.com/phrazzld/audiopaper-api/internal/store"
	"github.com/phrazzld/audiopaper-api/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"document not found", fmt.Errorf("load: %w", domain.ErrDocumentNotFound), http.StatusNotFound, "Document not found"},
		{"prerequisite", domain.ErrPrerequisiteMissing, http.StatusConflict, "Prerequisite stage has not completed"},
		{"not retryable", domain.ErrTaskNotRetryable, http.StatusConflict, "Task is not in error state"},
		{"active task", store.ErrActiveTaskExists, http.StatusConflict, "Another task is already running for this document and type"},
		{"unknown type", domain.ErrUnknownTaskType, http.StatusBadRequest, "Unknown task type"},
		{"not streamable", service.ErrNotStreamable, http.StatusBadRequest, "Task type does not support streaming"},
		{"bad params", generation.ErrInvalidParams, http.StatusBadRequest, "Invalid task parameters"},
		{"bad id", domain.ErrInvalidID, http.StatusBadRequest, "Invalid ID"},
		{
			"queue full",
			fmt.Errorf("%w: %w", service.ErrExecutorUnavailable, task.ErrQueueFull),
			http.StatusServiceUnavailable,
			"Task queue is unavailable, retry later",
		},
		{"invalid transition", domain.ErrInvalidTransition, http.StatusInternalServerError, "An unexpected error occurred"},
		{"unknown", errors.New("db exploded at 10.0.0.1"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, GetSafeErrorMessage(tc.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New("Key: 'CreateDocumentRequest.Filename' Error:Field validation for 'Filename' failed on the 'max' tag")
	assert.Equal(t, "Invalid Filename: too long", SanitizeValidationError(err))
	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
