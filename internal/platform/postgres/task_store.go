package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

const taskColumns = `id, document_id, task_type, status, result, attempts, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create implements store.TaskStore.
func (s *PostgresTaskStore) Create(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	var created *domain.Task
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := lockTaskKey(ctx, tx, documentID, taskType); err != nil {
			return err
		}
		if _, err := s.activeForUpdate(ctx, tx, documentID, taskType); err == nil {
			return store.ErrActiveTaskExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		t, err := s.insert(ctx, tx, documentID, taskType)
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Replace implements store.TaskStore.
func (s *PostgresTaskStore) Replace(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
	reason string,
) (*domain.Task, []*domain.Task, error) {
	var (
		created    *domain.Task
		superseded []*domain.Task
	)
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		superseded = nil
		if err := lockTaskKey(ctx, tx, documentID, taskType); err != nil {
			return err
		}

		active, err := s.activeForUpdate(ctx, tx, documentID, taskType)
		switch {
		case err == nil:
			old, err := s.apply(ctx, tx, active, domain.TaskStatusError, domain.ErrorResult(reason))
			if err != nil {
				return fmt.Errorf("supersede task %s: %w", active.ID, err)
			}
			superseded = append(superseded, old)
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		created, err = s.insert(ctx, tx, documentID, taskType)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return created, superseded, nil
}

// Get implements store.TaskStore.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundAs(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// Transition implements store.TaskStore.
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.TaskStatus,
	result *domain.Result,
) (*domain.Task, error) {
	var updated *domain.Task
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		current, err := scanTask(row)
		if err != nil {
			return notFoundAs(err, store.ErrTaskNotFound)
		}

		updated, err = s.apply(ctx, tx, current, to, result)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Complete implements store.TaskStore. The task row stays locked while the
// document column is written, and both commit together.
func (s *PostgresTaskStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	result *domain.Result,
	artifact string,
) (*domain.Task, error) {
	var done *domain.Task
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		current, err := scanTask(row)
		if err != nil {
			return notFoundAs(err, store.ErrTaskNotFound)
		}

		if done, err = s.apply(ctx, tx, current, domain.TaskStatusComplete, result); err != nil {
			return err
		}
		return NewPostgresDocumentStore(tx).SaveArtifact(ctx, current.DocumentID, current.Type, artifact)
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}

// apply checks the transition, writes status, result and attempts in one
// UPDATE guarded on the previous status, and appends the history row.
func (s *PostgresTaskStore) apply(
	ctx context.Context,
	tx *sql.Tx,
	current *domain.Task,
	to domain.TaskStatus,
	result *domain.Result,
) (*domain.Task, error) {
	from := current.Status
	next := current.Clone()
	if err := next.ApplyTransition(to, result, s.now()); err != nil {
		return nil, err
	}

	resultJSON, err := marshalResult(next.Result)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, result = $2, attempts = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, next.Status, resultJSON, next.Attempts, next.UpdatedAt, next.ID, from)
	if err != nil {
		logger.FromContext(ctx).Debug("task update rejected by database",
			slog.String("task_id", next.ID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	if err := CheckRowsAffected(res, "task"); err != nil {
		return nil, fmt.Errorf("%w: status changed concurrently", domain.ErrInvalidTransition)
	}

	message := ""
	if next.Result != nil {
		message = next.Result.Message
	}
	if err := insertTransition(ctx, tx, next.ID, from, to, message, next.UpdatedAt); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PostgresTaskStore) insert(
	ctx context.Context,
	tx *sql.Tx,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	t, err := domain.NewTask(documentID, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, document_id, task_type, status, result, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, 0, $5, $6)
	`, t.ID, t.DocumentID, t.Type, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %v", store.ErrDocumentNotFound, err)
		}
		return nil, MapError(err)
	}

	if err := insertTransition(ctx, tx, t.ID, "", t.Status, "", now); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresTaskStore) activeForUpdate(
	ctx context.Context,
	tx *sql.Tx,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE document_id = $1 AND task_type = $2
		  AND status IN ('pending', 'queued', 'processing', 'retrying')
		FOR UPDATE
	`, documentID, taskType)
	t, err := scanTask(row)
	if err != nil {
		return nil, MapError(err)
	}
	return t, nil
}

// Active implements store.TaskStore.
func (s *PostgresTaskStore) Active(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE document_id = $1 AND task_type = $2
		  AND status IN ('pending', 'queued', 'processing', 'retrying')
	`, documentID, taskType)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundAs(err, store.ErrTaskNotFound)
	}
	return t, nil
}

// HasCompleted implements store.TaskStore.
func (s *PostgresTaskStore) HasCompleted(
	ctx context.Context,
	documentID uuid.UUID,
	taskType domain.TaskType,
) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE document_id = $1 AND task_type = $2 AND status = 'complete'
		)
	`, documentID, taskType).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}
	return exists, nil
}

// ListByDocument implements store.TaskStore.
func (s *PostgresTaskStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*domain.Task, error) {
	return s.query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE document_id = $1
		ORDER BY created_at ASC
	`, documentID)
}

// ListByStatus implements store.TaskStore.
func (s *PostgresTaskStore) ListByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	olderThan time.Time,
) ([]*domain.Task, error) {
	if olderThan.IsZero() {
		return s.query(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE status = $1
			ORDER BY created_at ASC
		`, status)
	}
	return s.query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at ASC
	`, status, olderThan.UTC())
}

// History implements store.TaskStore.
func (s *PostgresTaskStore) History(ctx context.Context, id uuid.UUID) ([]domain.TaskTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, message, created_at
		FROM task_transitions
		WHERE task_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var history []domain.TaskTransition
	for rows.Next() {
		tr := domain.TaskTransition{TaskID: id}
		var from, to string
		if err := rows.Scan(&from, &to, &tr.Message, &tr.At); err != nil {
			return nil, fmt.Errorf("failed to scan task transition: %w", err)
		}
		tr.From, tr.To = domain.TaskStatus(from), domain.TaskStatus(to)
		tr.At = tr.At.UTC()
		history = append(history, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task transitions: %w", err)
	}
	if len(history) == 0 {
		return nil, store.ErrTaskNotFound
	}
	return history, nil
}

func (s *PostgresTaskStore) query(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// lockTaskKey serializes creation and supersession for one key until the
// surrounding transaction ends.
func lockTaskKey(ctx context.Context, tx *sql.Tx, documentID uuid.UUID, taskType domain.TaskType) error {
	key := documentID.String() + ":" + string(taskType)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to lock task key: %w", err)
	}
	return nil
}

func insertTransition(
	ctx context.Context,
	tx *sql.Tx,
	taskID uuid.UUID,
	from, to domain.TaskStatus,
	message string,
	at time.Time,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO task_transitions (task_id, from_status, to_status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, taskID, string(from), string(to), message, at)
	if err != nil {
		return fmt.Errorf("failed to record task transition: %w", MapError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t          domain.Task
		taskType   string
		status     string
		resultJSON []byte
	)
	if err := row.Scan(
		&t.ID, &t.DocumentID, &taskType, &status, &resultJSON,
		&t.Attempts, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Type = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	if resultJSON != nil {
		var r domain.Result
		if err := json.Unmarshal(resultJSON, &r); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
		t.Result = &r
	}
	return &t, nil
}

func marshalResult(r *domain.Result) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task result: %w", err)
	}
	return string(b), nil
}

// notFoundAs maps sql.ErrNoRows to the given entity-specific not-found error.
func notFoundAs(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return MapError(err)
}
