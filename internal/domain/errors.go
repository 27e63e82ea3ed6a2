package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrNotFound is returned when a task or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a request is well-formed but cannot be
	// applied to the current state (pipeline ordering, duplicate retry).
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned by stores when a status change violates
	// the task state machine. Seeing it at the API boundary indicates a bug.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrAlreadyTerminal is returned when a second terminal transition is
	// attempted on a task that already reached complete or error. It is the
	// expected loser of a timeout/completion race and is safe to ignore.
	ErrAlreadyTerminal = errors.New("task already reached a terminal state")

	// ErrUpstreamFailure marks a failed external generation call.
	ErrUpstreamFailure = errors.New("upstream generation failed")

	// ErrTimeout marks a generation call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrUnknownTaskType is returned for task types outside the catalog.
	ErrUnknownTaskType = errors.New("unknown task type")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrDocumentNotFound indicates that the requested document does not exist.
	ErrDocumentNotFound = fmt.Errorf("%w: document", ErrNotFound)

	// Conflict errors

	// ErrPrerequisiteMissing is returned when a pipeline stage is requested
	// before the stage it depends on has produced its artifact.
	ErrPrerequisiteMissing = fmt.Errorf("%w: prerequisite stage has not completed", ErrConflict)

	// ErrTaskNotRetryable is returned when retry is requested for a task that
	// is not in the error state (including a concurrent duplicate retry).
	ErrTaskNotRetryable = fmt.Errorf("%w: task is not in error state", ErrConflict)

	// ErrActiveTaskExists is returned when a task is already active for the
	// same document and task type.
	ErrActiveTaskExists = fmt.Errorf("%w: an active task exists for this document and type", ErrConflict)
)
