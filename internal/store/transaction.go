package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
)

// TxFn runs inside a transaction. Returning an error rolls the transaction back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// Beginner starts transactions. *sql.DB implements it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// RunInTransaction runs fn in a transaction on db and commits when fn
// returns nil. An error or panic from fn rolls back; a panic is re-raised
// after the rollback.
func RunInTransaction(ctx context.Context, db Beginner, fn TxFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		p := recover()
		if p == nil && err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to roll back transaction", slog.String("error", rbErr.Error()))
			if p == nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
		if p != nil {
			log.Error("rolled back transaction after panic", slog.Any("panic", p))
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
