package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies the kind of work a task performs.
type TaskType string

// Task type values
const (
	TaskTypeSummary    TaskType = "summary"
	TaskTypeScript     TaskType = "script"
	TaskTypeAudio      TaskType = "audio"
	TaskTypeIngestSync TaskType = "ingest_sync"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusComplete   TaskStatus = "complete"
	TaskStatusError      TaskStatus = "error"
	TaskStatusRetrying   TaskStatus = "retrying"
)

// Messages recorded on tasks that did not finish through their operation.
const (
	MessageSuperseded  = "superseded"
	MessageTimeout     = "timeout"
	MessageCancelled   = "cancelled"
	MessageInterrupted = "interrupted"
	MessageStalled     = "stalled in processing"
	MessageQueueFull   = "queue full"
	MessageShutdown    = "executor shut down"
	MessageNoArtifact  = "operation returned no artifact"
)

// Validation errors for Task
var (
	ErrEmptyTaskID         = errors.New("task ID cannot be empty")
	ErrEmptyTaskDocumentID = errors.New("task document ID cannot be empty")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrTornTaskResult      = errors.New("task result must be present exactly when the status is terminal")
	ErrEmptyTaskResult     = errors.New("a complete task needs an artifact and a failed task needs a message")
)

// transitions lists the allowed target statuses for every source status.
// complete has no exits; error only exits to retrying.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusQueued, TaskStatusProcessing, TaskStatusError},
	TaskStatusQueued:     {TaskStatusProcessing, TaskStatusError},
	TaskStatusProcessing: {TaskStatusComplete, TaskStatusError},
	TaskStatusError:      {TaskStatusRetrying},
	TaskStatusRetrying:   {TaskStatusProcessing, TaskStatusError},
	TaskStatusComplete:   {},
}

// ActiveStatuses are the statuses in which a task counts as in flight.
var ActiveStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusQueued,
	TaskStatusProcessing,
	TaskStatusRetrying,
}

// IsTerminal reports whether the status is complete or error.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusError
}

// IsActive reports whether a task in this status is in flight.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusPending, TaskStatusQueued, TaskStatusProcessing, TaskStatusRetrying:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedSources returns every status from which a transition to `to` is legal.
func AllowedSources(to TaskStatus) []TaskStatus {
	var sources []TaskStatus
	for _, from := range []TaskStatus{
		TaskStatusPending, TaskStatusQueued, TaskStatusProcessing,
		TaskStatusComplete, TaskStatusError, TaskStatusRetrying,
	} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// CheckTransition returns nil when from -> to is allowed. A terminal-to-terminal
// attempt yields ErrAlreadyTerminal; anything else illegal yields
// ErrInvalidTransition.
func CheckTransition(from, to TaskStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	if from.IsTerminal() && to.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrAlreadyTerminal, from, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Result is the outcome of a finished task: an artifact reference on success
// or a message on failure.
type Result struct {
	Artifact string `json:"artifact,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ArtifactResult builds a success result.
func ArtifactResult(ref string) *Result {
	return &Result{Artifact: ref}
}

// ErrorResult builds a failure result.
func ErrorResult(message string) *Result {
	if message == "" {
		message = "unknown error"
	}
	return &Result{Message: message}
}

// Task represents a trackable unit of asynchronous generation work.
type Task struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID uuid.UUID  `json:"document_id"`
	Type       TaskType   `json:"task_type"`
	Status     TaskStatus `json:"status"`
	Result     *Result    `json:"result,omitempty"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewTask creates a pending task for the given document and type.
func NewTask(documentID uuid.UUID, taskType TaskType) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:         uuid.New(),
		DocumentID: documentID,
		Type:       taskType,
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks the task fields and the result/status invariant.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.DocumentID == uuid.Nil {
		return ErrEmptyTaskDocumentID
	}
	if _, err := LookupTaskType(t.Type); err != nil {
		return err
	}
	if !t.Status.Valid() {
		return ErrInvalidTaskStatus
	}
	if t.Status.IsTerminal() != (t.Result != nil) {
		return ErrTornTaskResult
	}
	return nil
}

// ApplyTransition moves the task to status `to`, replacing the result.
// The result must be non-nil exactly when `to` is terminal, carrying an
// artifact for complete and a message for error; entering
// processing increments Attempts. The task is left unchanged on error.
func (t *Task) ApplyTransition(to TaskStatus, result *Result, now time.Time) error {
	if err := CheckTransition(t.Status, to); err != nil {
		return err
	}
	if to.IsTerminal() != (result != nil) {
		return fmt.Errorf("%w: %s with result=%t", ErrTornTaskResult, to, result != nil)
	}
	if (to == TaskStatusComplete && result.Artifact == "") || (to == TaskStatusError && result.Message == "") {
		return fmt.Errorf("%w: %s", ErrEmptyTaskResult, to)
	}

	t.Status = to
	if result != nil {
		r := *result
		t.Result = &r
	} else {
		t.Result = nil
	}
	if to == TaskStatusProcessing {
		t.Attempts++
	}
	t.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a deep copy of the task so callers never share result pointers.
func (t *Task) Clone() *Task {
	c := *t
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return &c
}

// TaskTransition is a single entry in a task's status history.
type TaskTransition struct {
	TaskID  uuid.UUID  `json:"task_id"`
	From    TaskStatus `json:"from"`
	To      TaskStatus `json:"to"`
	Message string     `json:"message,omitempty"`
	At      time.Time  `json:"at"`
}
