package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/api/shared"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/service"
)

// TaskHandler handles the task endpoints: launch, status, history, retry
// and stream.
type TaskHandler struct {
	tasks     service.TaskService
	logger    *slog.Logger
	publicURL string
}

// TaskHandlerOption configures a TaskHandler.
type TaskHandlerOption func(*TaskHandler)

// WithPublicURL prefixes every status_url returned by Launch with base.
func WithPublicURL(base string) TaskHandlerOption {
	return func(h *TaskHandler) {
		h.publicURL = strings.TrimRight(base, "/")
	}
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger, opts ...TaskHandlerOption) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StatusURL is the path a client polls for the task's state.
func StatusURL(taskID string) string {
	return "/tasks/" + taskID + "/status"
}

// Launch handles POST /tasks/{type}/{document_id}. It returns 202 as soon as
// the task is recorded and queued; generation runs in the background.
func (h *TaskHandler) Launch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskType, docID, ok := handleTypeAndDocument(w, r)
	if !ok {
		return
	}

	var req LaunchTaskRequest
	if err := shared.DecodeOptionalJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t, err := h.tasks.Launch(r.Context(), service.LaunchRequest{
		DocumentID: docID,
		Type:       taskType,
		Override:   req.Override,
		Params:     req.Params,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("task accepted",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", string(t.Type)))
	shared.RespondWithJSON(w, r, http.StatusAccepted, LaunchTaskResponse{
		TaskID:    t.ID,
		StatusURL: h.publicURL + StatusURL(t.ID.String()),
	})
}

// Status handles GET /tasks/{task_id}/status.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, paramRef)
	if !ok {
		return
	}

	t, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// History handles GET /tasks/{task_id}/history.
func (h *TaskHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, paramRef)
	if !ok {
		return
	}

	history, err := h.tasks.History(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, transitionsToResponse(history))
}

// Retry handles POST /tasks/{task_id}/retry.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := handlePathUUID(w, r, paramRef)
	if !ok {
		return
	}

	if _, err := h.tasks.Retry(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RetryTaskResponse{Success: true})
}

// Stream handles GET /tasks/{type}/{document_id}/stream. Query parameters
// other than override are passed to the generation as params. Validation
// failures are reported as JSON errors before the event stream opens;
// afterwards every outcome is an event.
func (h *TaskHandler) Stream(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskType, docID, ok := handleTypeAndDocument(w, r)
	if !ok {
		return
	}

	req := service.LaunchRequest{DocumentID: docID, Type: taskType}
	for name, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		if name == "override" {
			override, err := strconv.ParseBool(values[0])
			if err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid override value", err)
				return
			}
			req.Override = override
			continue
		}
		if req.Params == nil {
			req.Params = make(map[string]string)
		}
		req.Params[name] = values[0]
	}

	t, events, err := h.tasks.Stream(r.Context(), req)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	ew, err := shared.StartEventStream(w, map[string]string{"X-Task-ID": t.ID.String()})
	if err != nil {
		// Ranging once settles the task record instead of leaving it pending.
		log.Error("response writer cannot stream", slog.String("error", err.Error()))
		for range events {
			break
		}
		return
	}

	log = log.With(slog.String("task_id", t.ID.String()))
	for ev := range events {
		if err := ew.WriteEvent(ev); err != nil {
			log.Debug("stream client went away", slog.String("error", err.Error()))
			break
		}
	}
}
