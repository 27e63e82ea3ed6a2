package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// DocumentStore persists documents and the artifacts generated for them.
type DocumentStore interface {
	// Create saves a new document. The document must pass validation.
	Create(ctx context.Context, doc *domain.Document) error

	// Get returns the document or ErrDocumentNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// SaveArtifact records the artifact produced by taskType on the document.
	SaveArtifact(ctx context.Context, id uuid.UUID, taskType domain.TaskType, value string) error
}
