package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflictRetryExhausted is returned when a serializable transaction
	// kept colliding with concurrent writers past the attempt budget.
	ErrConflictRetryExhausted = errors.New("transaction conflict: retries exhausted")
)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DefaultTxAttempts bounds optimistic-concurrency retries. The caller only
// ever sees final success or terminal failure, never a partial application.
const DefaultTxAttempts = 3

// TxRetryHook, when set, observes every serialization retry. Wired to the
// metrics collector at startup.
var TxRetryHook func()

// RunSerializable executes fn inside a SERIALIZABLE transaction, retrying
// transparently on serialization failures and deadlocks (SQLSTATE 40001 and
// 40P01). Any other error from fn aborts immediately and is returned as-is.
func RunSerializable(ctx context.Context, db *sql.DB, attempts int, fn func(tx *sql.Tx) error) error {
	if attempts < 1 {
		attempts = DefaultTxAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			if isRetryableTxError(err) {
				lastErr = err
				if TxRetryHook != nil {
					TxRetryHook()
				}
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isRetryableTxError(err) {
				lastErr = err
				if TxRetryHook != nil {
					TxRetryHook()
				}
				continue
			}
			return err
		}
		return nil
	}

	return errors.Join(ErrConflictRetryExhausted, lastErr)
}

func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
