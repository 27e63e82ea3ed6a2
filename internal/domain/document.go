package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocumentSource tells where a document's text comes from.
type DocumentSource string

// Document sources
const (
	DocumentSourceLocal   DocumentSource = "local"
	DocumentSourceRagflow DocumentSource = "ragflow"
)

// Validation errors for Document
var (
	ErrEmptyDocumentFilename = errors.New("document filename cannot be empty")
	ErrMissingRagflowRef     = errors.New("ragflow documents need a dataset and document ID")
)

// Document is the subject of generation tasks together with the artifacts
// produced for it.
type Document struct {
	ID                uuid.UUID      `json:"id"`
	Filename          string         `json:"filename"`
	Text              string         `json:"text,omitempty"`
	Source            DocumentSource `json:"source"`
	RagflowDatasetID  string         `json:"ragflow_dataset_id,omitempty"`
	RagflowDocumentID string         `json:"ragflow_document_id,omitempty"`
	Summary           string         `json:"summary,omitempty"`
	Script            string         `json:"script,omitempty"`
	AudioRef          string         `json:"audio_ref,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewDocument creates a local document from extracted text.
func NewDocument(filename, text string) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.New(),
		Filename:  filename,
		Text:      text,
		Source:    DocumentSourceLocal,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// NewRagflowDocument creates a document whose text is synced from Ragflow.
func NewRagflowDocument(filename, datasetID, documentID string) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{
		ID:                uuid.New(),
		Filename:          filename,
		Source:            DocumentSourceRagflow,
		RagflowDatasetID:  datasetID,
		RagflowDocumentID: documentID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks if the Document has valid data.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return ErrInvalidID
	}
	if d.Filename == "" {
		return ErrEmptyDocumentFilename
	}
	switch d.Source {
	case DocumentSourceLocal:
		if d.Text == "" {
			return ErrEmptyContent
		}
	case DocumentSourceRagflow:
		if d.RagflowDatasetID == "" || d.RagflowDocumentID == "" {
			return ErrMissingRagflowRef
		}
	default:
		return ErrValidation
	}
	return nil
}

// HasArtifact reports whether the artifact produced by taskType is present.
func (d *Document) HasArtifact(taskType TaskType) bool {
	switch taskType {
	case TaskTypeSummary:
		return d.Summary != ""
	case TaskTypeScript:
		return d.Script != ""
	case TaskTypeAudio:
		return d.AudioRef != ""
	case TaskTypeIngestSync:
		return d.Text != ""
	default:
		return false
	}
}

// SetArtifact records the artifact produced by taskType.
func (d *Document) SetArtifact(taskType TaskType, value string) error {
	switch taskType {
	case TaskTypeSummary:
		d.Summary = value
	case TaskTypeScript:
		d.Script = value
	case TaskTypeAudio:
		d.AudioRef = value
	case TaskTypeIngestSync:
		d.Text = value
	default:
		return ErrUnknownTaskType
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}
