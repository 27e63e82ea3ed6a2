package service

import (
	"errors"
	"fmt"
)

// Service sentinel errors. Callers check them with errors.Is; the API layer
// maps them to HTTP status codes.
var (
	// ErrNotStreamable is returned when a stream is requested for a task type
	// that only runs in the background. API layer maps this to 400.
	ErrNotStreamable = errors.New("task type does not support streaming")

	// ErrExecutorUnavailable is returned when the executor rejected a task
	// because its queue is full or it is shutting down. The task itself has
	// been recorded as failed and can be retried. API layer maps this to 503.
	ErrExecutorUnavailable = errors.New("task executor unavailable")
)

// TaskServiceError wraps unexpected failures with the operation that hit them.
type TaskServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
func NewTaskServiceError(operation, message string, err error) *TaskServiceError {
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
