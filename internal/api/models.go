package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// LaunchTaskRequest is the optional body of POST /tasks/{type}/{document_id}.
type LaunchTaskRequest struct {
	// Override skips the pipeline prerequisite check.
	Override bool              `json:"override"`
	Params   map[string]string `json:"params" validate:"omitempty,max=8"`
}

// LaunchTaskResponse is returned with 202 Accepted.
type LaunchTaskResponse struct {
	TaskID    uuid.UUID `json:"task_id"`
	StatusURL string    `json:"status_url"`
}

// TaskResponse is the status snapshot of a task.
type TaskResponse struct {
	TaskID     uuid.UUID      `json:"task_id"`
	DocumentID uuid.UUID      `json:"document_id"`
	TaskType   string         `json:"task_type"`
	Status     string         `json:"status"`
	Result     *domain.Result `json:"result,omitempty"`
	Attempts   int            `json:"attempts"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TransitionResponse is one entry of a task's history.
type TransitionResponse struct {
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// RetryTaskResponse is returned when a retry was accepted.
type RetryTaskResponse struct {
	Success bool `json:"success"`
}

// CreateDocumentRequest registers a document from extracted text or from a
// Ragflow reference.
type CreateDocumentRequest struct {
	Filename          string `json:"filename"            validate:"required,max=255"`
	Text              string `json:"text"                validate:"required_without=RagflowDocumentID"`
	RagflowDatasetID  string `json:"ragflow_dataset_id"  validate:"required_with=RagflowDocumentID"`
	RagflowDocumentID string `json:"ragflow_document_id" validate:"required_with=RagflowDatasetID"`
}

// CreateDocumentResponse is returned with 201 Created.
type CreateDocumentResponse struct {
	ID uuid.UUID `json:"id"`
}

// DocumentResponse is the public view of a document and its artifacts.
type DocumentResponse struct {
	ID                uuid.UUID `json:"id"`
	Filename          string    `json:"filename"`
	Source            string    `json:"source"`
	RagflowDatasetID  string    `json:"ragflow_dataset_id,omitempty"`
	RagflowDocumentID string    `json:"ragflow_document_id,omitempty"`
	HasText           bool      `json:"has_text"`
	Summary           string    `json:"summary,omitempty"`
	Script            string    `json:"script,omitempty"`
	AudioRef          string    `json:"audio_ref,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		TaskID:     t.ID,
		DocumentID: t.DocumentID,
		TaskType:   string(t.Type),
		Status:     string(t.Status),
		Result:     t.Result,
		Attempts:   t.Attempts,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func transitionsToResponse(history []domain.TaskTransition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(history))
	for _, tr := range history {
		out = append(out, TransitionResponse{
			From:    string(tr.From),
			To:      string(tr.To),
			Message: tr.Message,
			At:      tr.At,
		})
	}
	return out
}

func documentToResponse(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:                d.ID,
		Filename:          d.Filename,
		Source:            string(d.Source),
		RagflowDatasetID:  d.RagflowDatasetID,
		RagflowDocumentID: d.RagflowDocumentID,
		HasText:           d.Text != "",
		Summary:           d.Summary,
		Script:            d.Script,
		AudioRef:          d.AudioRef,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
