package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/audiopaper-api/internal/api/shared"
	"github.com/phrazzld/audiopaper-api/internal/service"
)

// DocumentHandler handles document registration and lookup.
type DocumentHandler struct {
	docs   service.DocumentService
	tasks  service.TaskService
	logger *slog.Logger
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(docs service.DocumentService, tasks service.TaskService, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		docs:   docs,
		tasks:  tasks,
		logger: logger.With(slog.String("component", "document_handler")),
	}
}

// Create handles POST /documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	doc, err := h.docs.CreateDocument(r.Context(), service.CreateDocumentRequest{
		Filename:          req.Filename,
		Text:              req.Text,
		RagflowDatasetID:  req.RagflowDatasetID,
		RagflowDocumentID: req.RagflowDocumentID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateDocumentResponse{ID: doc.ID})
}

// Get handles GET /documents/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, paramID)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, documentToResponse(doc))
}

// ListTasks handles GET /documents/{id}/tasks
func (h *DocumentHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, paramID)
	if !ok {
		return
	}

	tasks, err := h.tasks.ListByDocument(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, out)
}
