package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/store"
	"github.com/phrazzld/audiopaper-api/internal/task"
)

// TaskRunner is the part of the executor the service drives.
type TaskRunner interface {
	// Submit hands an existing pending or retrying task to the workers.
	Submit(ctx context.Context, t *domain.Task) error

	// SubmitWithParams submits t with generation params.
	SubmitWithParams(ctx context.Context, t *domain.Task, params map[string]string) error

	// Cancel aborts in-flight work for superseded tasks.
	Cancel(taskIDs ...uuid.UUID)

	// Stream runs a pending task on the caller's context.
	Stream(ctx context.Context, t *domain.Task, params map[string]string) generation.EventSequence
}

// LaunchRequest describes a generation the caller wants to start.
type LaunchRequest struct {
	DocumentID uuid.UUID
	Type       domain.TaskType
	// Override skips the pipeline prerequisite check.
	Override bool
	Params   map[string]string
}

// TaskService provides the task use cases exposed by the API.
type TaskService interface {
	// Launch supersedes any active task for the document and type, creates a
	// new one and submits it to the executor without waiting for it to run.
	Launch(ctx context.Context, req LaunchRequest) (*domain.Task, error)

	// Status returns the current state of a task.
	Status(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Retry moves a failed task back to retrying and resubmits it.
	Retry(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// History returns the transitions a task went through.
	History(ctx context.Context, id uuid.UUID) ([]domain.TaskTransition, error)

	// ListByDocument returns every task recorded for a document.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.Task, error)

	// Stream validates the request and creates the task before returning.
	// The returned sequence runs the generation when it is ranged over.
	Stream(ctx context.Context, req LaunchRequest) (*domain.Task, generation.EventSequence, error)
}

type taskServiceImpl struct {
	tasks  store.TaskStore
	docs   store.DocumentStore
	runner TaskRunner
	logger *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	docs store.DocumentStore,
	runner TaskRunner,
	logger *slog.Logger,
) (TaskService, error) {
	if tasks == nil {
		return nil, fmt.Errorf("%w: tasks cannot be nil", domain.ErrValidation)
	}
	if docs == nil {
		return nil, fmt.Errorf("%w: docs cannot be nil", domain.ErrValidation)
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: runner cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tasks:  tasks,
		docs:   docs,
		runner: runner,
		logger: logger.With(slog.String("component", "task_service")),
	}, nil
}

// Launch implements TaskService.Launch
func (s *taskServiceImpl) Launch(ctx context.Context, req LaunchRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("document_id", req.DocumentID.String()),
		slog.String("task_type", string(req.Type)),
	)

	created, err := s.start(ctx, log, req, "launch")
	if err != nil {
		return nil, err
	}

	if err := s.runner.SubmitWithParams(ctx, created, req.Params); err != nil {
		return nil, s.submitError("launch", log, created.ID, err)
	}

	log.Info("task launched", slog.String("task_id", created.ID.String()))
	return created, nil
}

// Stream implements TaskService.Stream
func (s *taskServiceImpl) Stream(
	ctx context.Context,
	req LaunchRequest,
) (*domain.Task, generation.EventSequence, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("document_id", req.DocumentID.String()),
		slog.String("task_type", string(req.Type)),
	)

	info, err := domain.LookupTaskType(req.Type)
	if err != nil {
		return nil, nil, err
	}
	if !info.Streamable {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotStreamable, req.Type)
	}

	created, err := s.start(ctx, log, req, "stream")
	if err != nil {
		return nil, nil, err
	}

	log.Info("task stream opened", slog.String("task_id", created.ID.String()))
	return created, s.runner.Stream(ctx, created, req.Params), nil
}

// start runs the checks shared by Launch and Stream and creates the task,
// cancelling whatever it superseded.
func (s *taskServiceImpl) start(
	ctx context.Context,
	log *slog.Logger,
	req LaunchRequest,
	op string,
) (*domain.Task, error) {
	info, err := domain.LookupTaskType(req.Type)
	if err != nil {
		return nil, err
	}
	if err := generation.ValidateParams(req.Type, req.Params); err != nil {
		return nil, err
	}

	doc, err := s.docs.Get(ctx, req.DocumentID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrDocumentNotFound
		}
		log.Error("failed to load document", slog.String("error", err.Error()))
		return nil, NewTaskServiceError(op, "failed to load document", err)
	}

	if req.Type == domain.TaskTypeIngestSync && doc.Source != domain.DocumentSourceRagflow {
		return nil, fmt.Errorf("%w: document %s is not backed by ragflow", domain.ErrValidation, doc.ID)
	}

	if !req.Override {
		if err := s.checkPrerequisite(ctx, doc, info); err != nil {
			log.Debug("prerequisite not met", slog.String("error", err.Error()))
			return nil, err
		}
	}

	created, superseded, err := s.tasks.Replace(ctx, req.DocumentID, req.Type, domain.MessageSuperseded)
	if err != nil {
		if errors.Is(err, store.ErrActiveTaskExists) {
			return nil, err
		}
		log.Error("failed to create task", slog.String("error", err.Error()))
		return nil, NewTaskServiceError(op, "failed to create task", err)
	}

	if len(superseded) > 0 {
		ids := make([]uuid.UUID, 0, len(superseded))
		for _, t := range superseded {
			ids = append(ids, t.ID)
			log.Info("superseded active task",
				slog.String("superseded_task_id", t.ID.String()),
				slog.String("new_task_id", created.ID.String()))
		}
		s.runner.Cancel(ids...)
	}

	return created, nil
}

// checkPrerequisite enforces the pipeline order. A stage may run once the
// stage before it has either completed a task or left its artifact on the
// document. Summaries additionally need document text.
func (s *taskServiceImpl) checkPrerequisite(
	ctx context.Context,
	doc *domain.Document,
	info domain.TaskTypeInfo,
) error {
	if info.Prerequisite == "" {
		if info.Type == domain.TaskTypeSummary && doc.Text == "" {
			return fmt.Errorf("%w: document %s has no text yet", domain.ErrPrerequisiteMissing, doc.ID)
		}
		return nil
	}
	if doc.HasArtifact(info.Prerequisite) {
		return nil
	}

	done, err := s.tasks.HasCompleted(ctx, doc.ID, info.Prerequisite)
	if err != nil {
		return NewTaskServiceError("check_prerequisite", "failed to read prerequisite tasks", err)
	}
	if !done {
		return fmt.Errorf("%w: %s requires %s", domain.ErrPrerequisiteMissing, info.Type, info.Prerequisite)
	}
	return nil
}

// Status implements TaskService.Status
func (s *taskServiceImpl) Status(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, NewTaskServiceError("status", "failed to retrieve task", err)
	}
	return t, nil
}

// Retry implements TaskService.Retry
func (s *taskServiceImpl) Retry(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", id.String()))

	retrying, err := s.tasks.Transition(ctx, id, domain.TaskStatusRetrying, nil)
	switch {
	case err == nil:
	case store.IsNotFoundError(err):
		return nil, store.ErrTaskNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		log.Debug("retry rejected", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", domain.ErrTaskNotRetryable, err)
	case errors.Is(err, store.ErrActiveTaskExists):
		return nil, err
	default:
		log.Error("failed to mark task for retry", slog.String("error", err.Error()))
		return nil, NewTaskServiceError("retry", "failed to update task", err)
	}

	if err := s.runner.Submit(ctx, retrying); err != nil {
		return nil, s.submitError("retry", log, id, err)
	}

	log.Info("task resubmitted for retry", slog.Int("attempts", retrying.Attempts))
	return retrying, nil
}

// History implements TaskService.History
func (s *taskServiceImpl) History(ctx context.Context, id uuid.UUID) ([]domain.TaskTransition, error) {
	history, err := s.tasks.History(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, NewTaskServiceError("history", "failed to retrieve history", err)
	}
	return history, nil
}

// ListByDocument implements TaskService.ListByDocument
func (s *taskServiceImpl) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.Task, error) {
	if _, err := s.docs.Get(ctx, documentID); err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, NewTaskServiceError("list_by_document", "failed to load document", err)
	}

	tasks, err := s.tasks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, NewTaskServiceError("list_by_document", "failed to list tasks", err)
	}
	return tasks, nil
}

func (s *taskServiceImpl) submitError(op string, log *slog.Logger, id uuid.UUID, err error) error {
	if errors.Is(err, task.ErrQueueFull) || errors.Is(err, task.ErrQueueClosed) {
		log.Warn("executor rejected task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrExecutorUnavailable, err)
	}
	log.Error("failed to submit task",
		slog.String("task_id", id.String()),
		slog.String("error", err.Error()))
	return NewTaskServiceError(op, "failed to submit task", err)
}
