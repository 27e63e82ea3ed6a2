package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// SQLSTATE codes the stores map to store errors.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// activeTaskConstraint is the partial unique index allowing one active task
// per (document_id, task_type).
const activeTaskConstraint = "tasks_one_active_per_key"

// MapError translates database errors into store errors, wrapping the
// original. Errors without a mapping are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case IsUniqueViolation(err) && pgErr.ConstraintName == activeTaskConstraint:
		return fmt.Errorf("%w: %v", store.ErrActiveTaskExists, err)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case IsForeignKeyViolation(err), pgErr.Code == checkViolationCode:
		return fmt.Errorf("%w: constraint %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case pgErr.Code == notNullViolationCode:
		return fmt.Errorf("%w: column %s is required: %v", store.ErrInvalidEntity, pgErr.ColumnName, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolationCode)
}

// IsForeignKeyViolation reports whether err is a foreign key violation, as
// when a task references a document that does not exist.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolationCode)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// CheckRowsAffected returns store.ErrNotFound when res touched no rows.
func CheckRowsAffected(res sql.Result, entity string) error {
	if res == nil {
		return errors.New("nil result")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, entity)
	}
	return nil
}
