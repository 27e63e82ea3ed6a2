package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

type taskKey struct {
	documentID uuid.UUID
	taskType   domain.TaskType
}

// keySlot serializes creation, supersession and re-activation for one key.
type keySlot struct {
	mu     sync.Mutex
	active uuid.UUID
}

type taskEntry struct {
	mu      sync.Mutex
	task    *domain.Task
	history []domain.TaskTransition
}

// TaskStore is an in-memory store.TaskStore.
type TaskStore struct {
	index sync.RWMutex
	tasks map[uuid.UUID]*taskEntry
	keys  map[taskKey]*keySlot
	byDoc map[uuid.UUID][]uuid.UUID

	docs *DocumentStore
	now  func() time.Time
}

var errNoDocuments = errors.New("memstore: task store has no document store attached")

var _ store.TaskStore = (*TaskStore)(nil)

// Option configures a TaskStore.
type Option func(*TaskStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *TaskStore) { s.now = now }
}

// WithDocuments attaches the document store that Complete writes artifacts to.
func WithDocuments(docs *DocumentStore) Option {
	return func(s *TaskStore) { s.docs = docs }
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore(opts ...Option) *TaskStore {
	s := &TaskStore{
		tasks: make(map[uuid.UUID]*taskEntry),
		keys:  make(map[taskKey]*keySlot),
		byDoc: make(map[uuid.UUID][]uuid.UUID),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskStore) slot(k taskKey) *keySlot {
	s.index.RLock()
	sl, ok := s.keys[k]
	s.index.RUnlock()
	if ok {
		return sl
	}

	s.index.Lock()
	defer s.index.Unlock()
	if sl, ok = s.keys[k]; !ok {
		sl = &keySlot{}
		s.keys[k] = sl
	}
	return sl
}

func (s *TaskStore) entry(id uuid.UUID) (*taskEntry, bool) {
	s.index.RLock()
	defer s.index.RUnlock()
	e, ok := s.tasks[id]
	return e, ok
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	sl := s.slot(taskKey{documentID, taskType})
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.active != uuid.Nil {
		return nil, fmt.Errorf("%w: task %s", store.ErrActiveTaskExists, sl.active)
	}
	return s.insertLocked(sl, documentID, taskType)
}

// Replace implements store.TaskStore.
func (s *TaskStore) Replace(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
	reason string,
) (*domain.Task, []*domain.Task, error) {
	sl := s.slot(taskKey{documentID, taskType})
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var superseded []*domain.Task
	if sl.active != uuid.Nil {
		e, ok := s.entry(sl.active)
		if ok {
			e.mu.Lock()
			snap, err := s.applyLocked(e, domain.TaskStatusError, domain.ErrorResult(reason))
			e.mu.Unlock()
			if err != nil {
				return nil, nil, fmt.Errorf("supersede task %s: %w", sl.active, err)
			}
			superseded = append(superseded, snap)
		}
		sl.active = uuid.Nil
	}

	created, err := s.insertLocked(sl, documentID, taskType)
	if err != nil {
		return nil, nil, err
	}
	return created, superseded, nil
}

// insertLocked requires sl.mu to be held.
func (s *TaskStore) insertLocked(sl *keySlot, documentID uuid.UUID, taskType domain.TaskType) (*domain.Task, error) {
	t, err := domain.NewTask(documentID, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	e := &taskEntry{
		task: t,
		history: []domain.TaskTransition{{
			TaskID: t.ID,
			To:     domain.TaskStatusPending,
			At:     now,
		}},
	}

	s.index.Lock()
	s.tasks[t.ID] = e
	s.byDoc[documentID] = append(s.byDoc[documentID], t.ID)
	s.index.Unlock()

	sl.active = t.ID
	return t.Clone(), nil
}

// applyLocked requires e.mu (and the key slot, when the key changes) to be held.
func (s *TaskStore) applyLocked(e *taskEntry, to domain.TaskStatus, result *domain.Result) (*domain.Task, error) {
	from := e.task.Status
	next := e.task.Clone()
	if err := next.ApplyTransition(to, result, s.now()); err != nil {
		return nil, err
	}

	tr := domain.TaskTransition{TaskID: next.ID, From: from, To: to, At: next.UpdatedAt}
	if result != nil {
		tr.Message = result.Message
	}

	e.task = next
	e.history = append(e.history, tr)
	return next.Clone(), nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// Transition implements store.TaskStore.
func (s *TaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	result *domain.Result,
) (*domain.Task, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	// Document and type never change, so the key can be read before locking.
	e.mu.Lock()
	k := taskKey{e.task.DocumentID, e.task.Type}
	e.mu.Unlock()

	sl := s.slot(k)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	wasActive := e.task.Status.IsActive()
	if to.IsActive() && !wasActive && sl.active != uuid.Nil && sl.active != id {
		return nil, fmt.Errorf("%w: task %s", store.ErrActiveTaskExists, sl.active)
	}

	snap, err := s.applyLocked(e, to, result)
	if err != nil {
		return nil, err
	}

	switch {
	case to.IsActive():
		sl.active = id
	case sl.active == id:
		sl.active = uuid.Nil
	}
	return snap, nil
}

// Complete implements store.TaskStore. The artifact is written while the key
// slot is held, so a concurrent Replace lands entirely before or after it.
func (s *TaskStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	result *domain.Result,
	artifact string,
) (*domain.Task, error) {
	if s.docs == nil {
		return nil, errNoDocuments
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	e.mu.Lock()
	k := taskKey{e.task.DocumentID, e.task.Type}
	e.mu.Unlock()

	sl := s.slot(k)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.task.Clone().ApplyTransition(domain.TaskStatusComplete, result, s.now()); err != nil {
		return nil, err
	}
	if err := s.docs.SaveArtifact(ctx, k.documentID, k.taskType, artifact); err != nil {
		return nil, err
	}

	snap, err := s.applyLocked(e, domain.TaskStatusComplete, result)
	if err != nil {
		return nil, err
	}
	if sl.active == id {
		sl.active = uuid.Nil
	}
	return snap, nil
}

// Active implements store.TaskStore.
func (s *TaskStore) Active(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	sl := s.slot(taskKey{documentID, taskType})
	sl.mu.Lock()
	active := sl.active
	sl.mu.Unlock()

	if active == uuid.Nil {
		return nil, store.ErrTaskNotFound
	}
	return s.Get(ctx, active)
}

// HasCompleted implements store.TaskStore.
func (s *TaskStore) HasCompleted(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (bool, error) {
	for _, t := range s.snapshotDocument(documentID) {
		if t.Type == taskType && t.Status == domain.TaskStatusComplete {
			return true, nil
		}
	}
	return false, nil
}

// ListByDocument implements store.TaskStore.
func (s *TaskStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.Task, error) {
	return s.snapshotDocument(documentID), nil
}

// ListByStatus implements store.TaskStore.
func (s *TaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Time,
) ([]*domain.Task, error) {
	s.index.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.index.RUnlock()

	var out []*domain.Task
	for _, e := range entries {
		e.mu.Lock()
		if e.task.Status == status && (olderThan.IsZero() || e.task.UpdatedAt.Before(olderThan)) {
			out = append(out, e.task.Clone())
		}
		e.mu.Unlock()
	}
	sortByCreation(out)
	return out, nil
}

// History implements store.TaskStore.
func (s *TaskStore) History(ctx context.Context, id uuid.UUID) ([]domain.TaskTransition, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TaskTransition, len(e.history))
	copy(out, e.history)
	return out, nil
}

func (s *TaskStore) snapshotDocument(documentID uuid.UUID) []*domain.Task {
	s.index.RLock()
	ids := append([]uuid.UUID(nil), s.byDoc[documentID]...)
	entries := make([]*taskEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, s.tasks[id])
	}
	s.index.RUnlock()

	out := make([]*domain.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.task.Clone())
		e.mu.Unlock()
	}
	sortByCreation(out)
	return out
}

func sortByCreation(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
