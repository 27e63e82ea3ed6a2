package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// job identifies a queued task. Workers reload the task from the store
// before running it, so the queue never holds stale state.
type job struct {
	taskID   uuid.UUID
	taskType domain.TaskType
}

// TaskQueue is a bounded FIFO of jobs waiting for a worker.
type TaskQueue struct {
	mu     sync.RWMutex
	jobs   chan job
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		jobs:   make(chan job, size),
		logger: logger,
	}
}

// Enqueue adds a job to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *TaskQueue) Enqueue(j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- j:
		q.logger.Debug("task enqueued",
			"task_id", j.taskID,
			"task_type", j.taskType,
			"queue_len", len(q.jobs),
			"queue_cap", cap(q.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// Close closes the task queue, preventing further task submission.
// Jobs still buffered remain readable until drained.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("task queue closed")
	}
}

// Len reports the number of buffered jobs.
func (q *TaskQueue) Len() int {
	return len(q.jobs)
}

// channel returns a read-only channel for consuming jobs
func (q *TaskQueue) channel() <-chan job {
	return q.jobs
}
