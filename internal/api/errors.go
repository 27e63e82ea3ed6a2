package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/api/shared"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/service"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors: pipeline order, retry of a non-failed task, a newer
	// task holding the key
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrUnknownTaskType),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, generation.ErrInvalidParams),
		errors.Is(err, service.ErrNotStreamable):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrExecutorUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error. ErrInvalidTransition lands here on
	// purpose: reaching the boundary with it means a bug.
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "Document not found"

	case errors.Is(err, domain.ErrPrerequisiteMissing):
		return "Prerequisite stage has not completed"
	case errors.Is(err, domain.ErrTaskNotRetryable):
		return "Task is not in error state"
	case errors.Is(err, domain.ErrActiveTaskExists):
		return "Another task is already running for this document and type"

	case errors.Is(err, domain.ErrUnknownTaskType):
		return "Unknown task type"
	case errors.Is(err, service.ErrNotStreamable):
		return "Task type does not support streaming"
	case errors.Is(err, generation.ErrInvalidParams):
		return "Invalid task parameters"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, service.ErrExecutorUnavailable):
		return "Task queue is unavailable, retry later"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes an error response with the status and message
// derived from err. A non-empty message overrides the derived one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), message, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'CreateDocumentRequest.Filename' Error:Field
	// validation for 'Filename' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required", "required_without":
		return "required field"
	case "required_with":
		return "must be set together with its pair"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
