package compose

import (
	"context"
	"database/sql"

	"routier/pkg/apperr"
)

// txState tracks the Tx lifecycle. Exactly one of commit/rollback runs before
// the Tx is discarded; no statement executes after either.
type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

// ErrTxClosed is returned when a statement runs against a finished Tx.
var ErrTxClosed = apperr.New(apperr.CodeTransaction, "transaction already finished")

// Tx wraps one live transaction in an open/committed/rolled-back state
// machine and carries rollback-time cleanup instructions for side effects
// (stored files) that live outside the database boundary.
type Tx struct {
	tx    *sql.Tx
	state txState

	cleanups []func()
}

// Exec runs a write statement within the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.state != txOpen {
		return nil, ErrTxClosed
	}
	return t.tx.ExecContext(ctx, query, args...)
}

// InsertReturningID runs an INSERT ... RETURNING id and captures the
// generated identifier.
func (t *Tx) InsertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if t.state != txOpen {
		return 0, ErrTxClosed
	}
	var id int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// OnRollback registers a best-effort cleanup instruction executed only if the
// composition rolls back. Used to remove files stored during the unit of
// work, since the file store shares no transaction with the database.
func (t *Tx) OnRollback(cleanup func()) {
	if t.state != txOpen {
		return
	}
	t.cleanups = append(t.cleanups, cleanup)
}

func (t *Tx) commit() error {
	if t.state != txOpen {
		return ErrTxClosed
	}
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.state = txCommitted
	return nil
}

func (t *Tx) rollback() {
	if t.state != txOpen {
		return
	}
	_ = t.tx.Rollback()
	t.state = txRolledBack
	// Cleanup instructions run in reverse registration order, after the
	// database state is settled.
	for i := len(t.cleanups) - 1; i >= 0; i-- {
		t.cleanups[i]()
	}
}
