// Package sqlitestore keeps the client's pending task handles in a local
// SQLite file. A store holds an exclusive lock file next to the database, so
// only one paperctl process at a time resumes and deletes handles.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/client"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrLocked means another process holds the state file.
var ErrLocked = errors.New("state file is in use by another paperctl process")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_handles (
	document_id TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	task_url    TEXT NOT NULL,
	task_type   TEXT NOT NULL,
	created_at  TEXT NOT NULL
)`

// Store implements client.HandleStore.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

var _ client.HandleStore = (*Store)(nil)

// Open creates or opens the state file at path and takes its lock.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range append(pragmas, schema) {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("initialize state file: %w", err)
		}
	}

	return &Store{db: db, lock: lock, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database and releases the lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	return errors.Join(dbErr, lockErr)
}

// Save implements client.HandleStore.
func (s *Store) Save(ctx context.Context, h client.PendingHandle) error {
	return s.exec(ctx, `
		INSERT INTO pending_handles (document_id, task_id, task_url, task_type, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			task_id = excluded.task_id,
			task_url = excluded.task_url,
			task_type = excluded.task_type,
			created_at = excluded.created_at`,
		h.DocumentID.String(), h.TaskID.String(), h.TaskURL, string(h.TaskType),
		h.CreatedAt.UTC().Format(time.RFC3339Nano))
}

// Get implements client.HandleStore.
func (s *Store) Get(ctx context.Context, documentID uuid.UUID) (client.PendingHandle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, task_id, task_url, task_type, created_at
		FROM pending_handles WHERE document_id = ?`, documentID.String())
	h, err := scanHandle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return client.PendingHandle{}, client.ErrHandleNotFound
	}
	return h, err
}

// Delete implements client.HandleStore.
func (s *Store) Delete(ctx context.Context, documentID, taskID uuid.UUID) error {
	return s.exec(ctx, `DELETE FROM pending_handles WHERE document_id = ? AND task_id = ?`,
		documentID.String(), taskID.String())
}

// List implements client.HandleStore.
func (s *Store) List(ctx context.Context) ([]client.PendingHandle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, task_id, task_url, task_type, created_at
		FROM pending_handles ORDER BY created_at, document_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending handles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []client.PendingHandle
	for rows.Next() {
		h, err := scanHandle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHandle(row scanner) (client.PendingHandle, error) {
	var docID, taskID, url, taskType, created string
	if err := row.Scan(&docID, &taskID, &url, &taskType, &created); err != nil {
		return client.PendingHandle{}, err
	}

	h := client.PendingHandle{TaskURL: url, TaskType: domain.TaskType(taskType)}
	var err error
	if h.DocumentID, err = uuid.Parse(docID); err != nil {
		return client.PendingHandle{}, fmt.Errorf("corrupt document_id %q: %w", docID, err)
	}
	if h.TaskID, err = uuid.Parse(taskID); err != nil {
		return client.PendingHandle{}, fmt.Errorf("corrupt task_id %q: %w", taskID, err)
	}
	if h.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return client.PendingHandle{}, fmt.Errorf("corrupt created_at %q: %w", created, err)
	}
	return h, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var err error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		if _, err = s.db.ExecContext(ctx, query, args...); err == nil {
			return nil
		}
		if !isBusy(err) {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return err
}

func isBusy(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
