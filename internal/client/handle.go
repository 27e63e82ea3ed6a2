package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// ErrHandleNotFound is returned by HandleStore.Get for unknown documents.
var ErrHandleNotFound = errors.New("pending handle not found")

// PendingHandle records a launched task the client is still waiting on.
// There is at most one per document.
type PendingHandle struct {
	DocumentID uuid.UUID
	TaskID     uuid.UUID
	TaskURL    string
	TaskType   domain.TaskType
	CreatedAt  time.Time
}

// HandleStore persists pending handles across client restarts.
type HandleStore interface {
	// Save stores h, replacing any handle for the same document.
	Save(ctx context.Context, h PendingHandle) error

	// Get returns the handle for a document or ErrHandleNotFound.
	Get(ctx context.Context, documentID uuid.UUID) (PendingHandle, error)

	// Delete removes the document's handle only if it still points at
	// taskID, so a stale poller cannot drop a newer launch's handle.
	Delete(ctx context.Context, documentID, taskID uuid.UUID) error

	// List returns all handles, oldest first.
	List(ctx context.Context) ([]PendingHandle, error)
}
