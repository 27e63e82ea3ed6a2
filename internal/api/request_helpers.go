package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
)

// Path parameter names. Every /tasks route shares the first segment name so
// that chi can tell "/tasks/{task_id}/status" from "/tasks/{type}/{document_id}".
const (
	paramRef        = "ref"
	paramDocumentID = "document_id"
	paramID         = "id"
)

// getPathUUID extracts a UUID from the URL path parameters.
//
// Parameters:
//   - r: The HTTP request
//   - paramName: The name of the path parameter to extract
//
// Returns:
//   - (uuid.UUID, nil): The parsed UUID if valid
//   - (uuid.UUID{}, error): A zero UUID and an ErrInvalidID-wrapped error otherwise
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}

	return id, nil
}

// handlePathUUID extracts a UUID path parameter and writes a 400 response
// when it is missing or malformed.
//
// Returns:
//   - (id, true): The parsed UUID
//   - (uuid.UUID{}, false): Extraction failed and an error was written
func handlePathUUID(w http.ResponseWriter, r *http.Request, paramName string) (uuid.UUID, bool) {
	id, err := getPathUUID(r, paramName)
	if err != nil {
		log := logger.FromContextOrDefault(r.Context(), slog.Default())
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

// handleTypeAndDocument extracts the task type and document ID from a
// /tasks/{type}/{document_id} path, writing a 400 response on failure.
func handleTypeAndDocument(w http.ResponseWriter, r *http.Request) (domain.TaskType, uuid.UUID, bool) {
	taskType, err := domain.ParseTaskType(chi.URLParam(r, paramRef))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return "", uuid.Nil, false
	}

	docID, ok := handlePathUUID(w, r, paramDocumentID)
	if !ok {
		return "", uuid.Nil, false
	}
	return taskType, docID, true
}
