package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
	"github.com/phrazzld/audiopaper-api/internal/redact"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// ErrOperationPanic marks an operation that panicked instead of returning.
var ErrOperationPanic = errors.New("operation panicked")

// maxMessageLength caps error messages copied into task results, which are
// redacted before they are stored.
const maxMessageLength = 500

// OperationLookup resolves the operation for a task type.
type OperationLookup interface {
	Lookup(taskType domain.TaskType) (generation.Operation, error)
}

// Config holds configuration for the executor
type Config struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// Timeout bounds every operation call
	Timeout time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stalled and failed
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stalled tasks
	// If zero, defaults to 1 minute
	StuckTaskCheckInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:            2,
		QueueSize:              100,
		Timeout:                10 * time.Minute,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: time.Minute,
	}
}

// Executor manages background task processing
type Executor struct {
	tasks  store.TaskStore
	docs   store.DocumentStore
	ops    OperationLookup
	queue  *TaskQueue
	config Config
	logger *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	params  map[uuid.UUID]map[string]string
}

// NewExecutor creates a new Executor
func NewExecutor(
	tasks store.TaskStore,
	docs store.DocumentStore,
	ops OperationLookup,
	config Config,
	logger *slog.Logger,
) *Executor {
	defaults := DefaultConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", defaults.WorkerCount)
		config.WorkerCount = defaults.WorkerCount
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = defaults.StuckTaskAge
	}
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = defaults.StuckTaskCheckInterval
	}

	logger = logger.With("component", "task_executor")
	ctx, cancel := context.WithCancel(context.Background())

	return &Executor{
		tasks:      tasks,
		docs:       docs,
		ops:        ops,
		queue:      NewTaskQueue(config.QueueSize, logger),
		config:     config,
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
		running:    make(map[uuid.UUID]context.CancelFunc),
		params:     make(map[uuid.UUID]map[string]string),
	}
}

// Start recovers unfinished work from a previous process, then starts the
// workers and the stalled-task monitor.
func (e *Executor) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		if err = e.Recover(ctx); err != nil {
			err = fmt.Errorf("failed to recover tasks: %w", err)
			return
		}

		for i := 0; i < e.config.WorkerCount; i++ {
			e.wg.Add(1)
			go e.worker(i)
		}

		e.wg.Add(1)
		go e.stuckTaskMonitor()

		e.logger.Info("task executor started",
			"worker_count", e.config.WorkerCount,
			"queue_size", cap(e.queue.jobs),
			"timeout", e.config.Timeout)
	})
	return err
}

// Stop gracefully shuts down the executor. In-flight operations are
// cancelled and recorded as failed; jobs still buffered stay queued in the
// store and are picked up by the next Start. Stop returns ctx.Err() if the
// workers do not exit in time.
func (e *Executor) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.queue.Close()
		e.cancelFunc()
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("task executor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit hands a task to the workers. A pending task moves to queued; a
// retrying task keeps its status until a worker picks it up. A pending task
// that was superseded before it could be queued is dropped without error.
// When the queue cannot take the task it is failed in the store and
// ErrQueueFull (or ErrQueueClosed) is returned.
func (e *Executor) Submit(ctx context.Context, t *domain.Task) error {
	log := e.logger.With(
		"task_id", t.ID,
		"task_type", t.Type,
		"document_id", t.DocumentID,
	)

	switch t.Status {
	case domain.TaskStatusPending:
		if _, err := e.tasks.Transition(ctx, t.ID, domain.TaskStatusQueued, nil); err != nil {
			if current, getErr := e.tasks.Get(ctx, t.ID); getErr == nil && current.Status.IsTerminal() {
				log.Debug("task finished before it was queued, dropping",
					"status", current.Status)
				e.forgetParams(t.ID)
				return nil
			}
			e.logTransitionError(ctx, log, t.ID, domain.TaskStatusQueued, err)
			return fmt.Errorf("failed to queue task: %w", err)
		}
	case domain.TaskStatusQueued, domain.TaskStatusRetrying:
	default:
		return fmt.Errorf("%w: cannot submit task in status %s", domain.ErrInvalidTransition, t.Status)
	}

	if err := e.queue.Enqueue(job{taskID: t.ID, taskType: t.Type}); err != nil {
		message := domain.MessageQueueFull
		if errors.Is(err, ErrQueueClosed) {
			message = domain.MessageShutdown
		}
		log.Warn("task rejected by queue", "error", err, "queued", e.queue.Len())
		e.fail(context.WithoutCancel(ctx), log, t.ID, message)
		return err
	}

	log.Debug("task submitted")
	return nil
}

// SubmitWithParams submits t and remembers its generation params. The params
// stay with the task until it completes, so a retry runs with the same ones.
func (e *Executor) SubmitWithParams(ctx context.Context, t *domain.Task, params map[string]string) error {
	e.setParams(t.ID, params)
	return e.Submit(ctx, t)
}

// Cancel aborts the in-flight operations of the given tasks, if this process
// is running them. It is used after supersession and is best effort.
func (e *Executor) Cancel(taskIDs ...uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range taskIDs {
		delete(e.params, id)
		if cancel, ok := e.running[id]; ok {
			cancel()
			e.logger.Debug("cancelled in-flight task", "task_id", id)
		}
	}
}

func (e *Executor) setParams(id uuid.UUID, params map[string]string) {
	if len(params) == 0 {
		return
	}
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	e.mu.Lock()
	e.params[id] = cp
	e.mu.Unlock()
}

func (e *Executor) paramsFor(id uuid.UUID) map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params[id]
}

func (e *Executor) forgetParams(id uuid.UUID) {
	e.mu.Lock()
	delete(e.params, id)
	e.mu.Unlock()
}

// IsRunning reports whether this process is currently executing the task.
func (e *Executor) IsRunning(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[id]
	return ok
}

func (e *Executor) track(id uuid.UUID, cancel context.CancelFunc) func() {
	e.mu.Lock()
	e.running[id] = cancel
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.running, id)
		e.mu.Unlock()
		cancel()
	}
}

// worker processes jobs from the queue
func (e *Executor) worker(id int) {
	defer e.wg.Done()

	e.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Debug("stopping worker", "worker_id", id)
			return

		case j, ok := <-e.queue.channel():
			if !ok {
				e.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			e.processTask(j, id)
		}
	}
}

// processTask handles execution of a single task
func (e *Executor) processTask(j job, workerID int) {
	storeCtx := context.WithoutCancel(e.ctx)
	log := e.logger.With(
		"task_id", j.taskID,
		"task_type", j.taskType,
		"worker_id", workerID,
	)

	if e.ctx.Err() != nil {
		// Left queued for the next process to recover.
		return
	}

	t, err := e.tasks.Transition(storeCtx, j.taskID, domain.TaskStatusProcessing, nil)
	if err != nil {
		e.logTransitionError(storeCtx, log, j.taskID, domain.TaskStatusProcessing, err)
		return
	}
	log = log.With("document_id", t.DocumentID, "attempt", t.Attempts)
	log.Info("processing task")

	opCtx, cancel := context.WithTimeout(e.ctx, e.config.Timeout)
	untrack := e.track(t.ID, cancel)
	defer untrack()

	art, err := e.run(opCtx, t, nil)
	e.finish(storeCtx, log, t, art, err, opCtx)
}

// run loads the document and invokes the operation for t, bounded by ctx.
func (e *Executor) run(ctx context.Context, t *domain.Task, emit generation.EmitFunc) (generation.Artifact, error) {
	doc, err := e.docs.Get(ctx, t.DocumentID)
	if err != nil {
		return generation.Artifact{}, fmt.Errorf("failed to load document: %w", err)
	}
	op, err := e.ops.Lookup(t.Type)
	if err != nil {
		return generation.Artifact{}, err
	}

	in := generation.Input{TaskID: t.ID, Document: *doc, Params: e.paramsFor(t.ID)}
	return e.invoke(ctx, op, in, emit)
}

// invoke runs op in its own goroutine so that the deadline is honoured even
// when the operation ignores ctx. Panics are converted to errors, and emit is
// disabled as soon as invoke returns.
func (e *Executor) invoke(
	ctx context.Context,
	op generation.Operation,
	in generation.Input,
	emit generation.EmitFunc,
) (generation.Artifact, error) {
	type outcome struct {
		art generation.Artifact
		err error
	}

	g := newEmitGate(emit)
	defer g.close()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Error("operation panicked",
					"task_id", in.TaskID,
					"panic", p)
				done <- outcome{err: fmt.Errorf("%w: %v", ErrOperationPanic, p)}
			}
		}()
		art, err := op.Invoke(ctx, in, g.emit)
		done <- outcome{art: art, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() != nil {
			return generation.Artifact{}, ctx.Err()
		}
		return out.art, out.err
	case <-ctx.Done():
		return generation.Artifact{}, ctx.Err()
	}
}

// finish records the outcome of a run: the task is completed together with
// its artifact, or failed with a message. A task that already left
// processing keeps its state and the document is not touched.
func (e *Executor) finish(
	ctx context.Context,
	log *slog.Logger,
	t *domain.Task,
	art generation.Artifact,
	runErr error,
	opCtx context.Context,
) *domain.Task {
	if runErr != nil {
		message, cause := e.classifyFailure(runErr, opCtx)
		log.Warn("task execution failed", "error", cause, "message", message)
		return e.fail(ctx, log, t.ID, message)
	}

	ref := art.ResultRef()
	if ref == "" {
		log.Warn("task execution failed", "error", domain.ErrEmptyTaskResult, "message", domain.MessageNoArtifact)
		return e.fail(ctx, log, t.ID, domain.MessageNoArtifact)
	}

	done, err := e.tasks.Complete(ctx, t.ID, domain.ArtifactResult(ref), art.Content)
	if err != nil {
		e.logTransitionError(ctx, log, t.ID, domain.TaskStatusComplete, err)
		current, getErr := e.tasks.Get(ctx, t.ID)
		if getErr != nil || current.Status == domain.TaskStatusProcessing {
			// The store refused the write itself, e.g. the document is gone.
			return e.fail(ctx, log, t.ID, "failed to save artifact")
		}
		return current
	}
	e.forgetParams(t.ID)
	log.Info("task completed successfully")
	return done
}

// fail moves the task to error, treating a lost race as a no-op.
func (e *Executor) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, message string) *domain.Task {
	failed, err := e.tasks.Transition(ctx, id, domain.TaskStatusError, domain.ErrorResult(message))
	if err != nil {
		e.logTransitionError(ctx, log, id, domain.TaskStatusError, err)
		current, _ := e.tasks.Get(ctx, id)
		return current
	}
	return failed
}

// classifyFailure returns the message stored on a failed task and err
// wrapped with the domain error naming its cause. Cancellation is returned
// unwrapped.
func (e *Executor) classifyFailure(err error, opCtx context.Context) (string, error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return domain.MessageTimeout, fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled) || opCtx.Err() != nil:
		if e.ctx.Err() != nil {
			return domain.MessageShutdown, err
		}
		return domain.MessageCancelled, err
	}
	msg := redact.Error(err)
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength]
	}
	return msg, fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err)
}

// logTransitionError logs store rejections at a level matching their cause:
// losing a race to another terminal write is expected, anything else is a bug.
func (e *Executor) logTransitionError(
	ctx context.Context,
	log *slog.Logger,
	id uuid.UUID,
	to domain.TaskStatus,
	err error,
) {
	switch {
	case errors.Is(err, domain.ErrAlreadyTerminal):
		log.Debug("task already finished, ignoring transition", "to", to, "error", err)
	case errors.Is(err, domain.ErrInvalidTransition):
		if current, getErr := e.tasks.Get(ctx, id); getErr == nil && current.Status.IsTerminal() {
			log.Debug("task left the active states before transition",
				"to", to,
				"status", current.Status)
			return
		}
		log.Error("invalid task transition", "to", to, "error", err)
	default:
		log.Error("failed to transition task", "to", to, "error", err)
	}
}

// emitGate forwards tokens until closed, after which they are dropped.
type emitGate struct {
	mu     sync.Mutex
	closed bool
	fn     generation.EmitFunc
}

func newEmitGate(fn generation.EmitFunc) *emitGate {
	return &emitGate{fn: fn}
}

func (g *emitGate) emit(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.fn == nil {
		return
	}
	g.fn(token)
}

func (g *emitGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
