package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// TaskStore defines the durable record of tasks.
//
// Implementations apply every status change atomically: the status, result,
// attempts counter and history entry are written together or not at all, and
// transitions are checked against the domain state machine at write time.
// At most one task per (document_id, task_type) may be in an active status.
type TaskStore interface {
	// Create inserts a new pending task. It returns ErrActiveTaskExists when a
	// task for the same document and type is already active.
	Create(ctx context.Context, documentID uuid.UUID, taskType domain.TaskType) (*domain.Task, error)

	// Replace fails any active task for the document and type with reason and
	// creates a new pending task in the same atomic step. The superseded tasks
	// are returned in their new error state.
	Replace(
		ctx context.Context,
		documentID uuid.UUID,
		taskType domain.TaskType,
		reason string,
	) (*domain.Task, []*domain.Task, error)

	// Get returns a snapshot of the task or ErrTaskNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Transition moves the task to status `to`. The result must be non-nil
	// exactly when `to` is terminal. Illegal moves return ErrInvalidTransition,
	// or ErrAlreadyTerminal for a second terminal write. Re-activating a task
	// (error -> retrying) returns ErrActiveTaskExists if another task holds the
	// key.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		to domain.TaskStatus,
		result *domain.Result,
	) (*domain.Task, error)

	// Complete moves a processing task to complete and records artifact on
	// its document in the same atomic step. If the task already left
	// processing (superseded, timed out) it fails like Transition and the
	// document is left untouched.
	Complete(ctx context.Context, id uuid.UUID, result *domain.Result, artifact string) (*domain.Task, error)

	// Active returns the active task for the document and type, or ErrTaskNotFound.
	Active(ctx context.Context, documentID uuid.UUID, taskType domain.TaskType) (*domain.Task, error)

	// HasCompleted reports whether any task for the document and type completed.
	HasCompleted(ctx context.Context, documentID uuid.UUID, taskType domain.TaskType) (bool, error)

	// ListByDocument returns every task for the document ordered by creation time.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.Task, error)

	// ListByStatus returns tasks in status whose updated_at is before olderThan.
	// A zero olderThan returns all tasks in that status.
	ListByStatus(ctx context.Context, status domain.TaskStatus, olderThan time.Time) ([]*domain.Task, error)

	// History returns the task's transitions oldest first, or ErrTaskNotFound.
	History(ctx context.Context, id uuid.UUID) ([]domain.TaskTransition, error)
}
