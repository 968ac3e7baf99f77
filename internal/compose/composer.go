// Package compose provides all-or-nothing execution of multi-table writes.
// A composition begins one transaction, runs a parent write plus dependent
// writes keyed on the parent's generated identifier, and either commits
// everything or rolls everything back and surfaces a single wrapped failure.
package compose

import (
	"context"
	"log/slog"

	"routier/internal/platform/database"
	"routier/pkg/apperr"
)

// Composer runs compositions on connections obtained from the manager.
type Composer struct {
	manager *database.Manager
	log     *slog.Logger
}

func NewComposer(manager *database.Manager, log *slog.Logger) *Composer {
	return &Composer{manager: manager, log: log}
}

// Run acquires a connection, begins a transaction, and executes fn. A nil
// return from fn commits; any error rolls back, runs registered cleanup
// instructions, and propagates one aggregated failure carrying the original
// cause. fn must not retain the Tx past its return.
func (c *Composer) Run(ctx context.Context, fn func(tx *Tx) error) error {
	db, err := c.manager.Acquire(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	raw, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeConnectivity, "begin transaction")
	}

	tx := &Tx{tx: raw}
	if err := fn(tx); err != nil {
		tx.rollback()
		return apperr.Wrap(err, apperr.CodeTransaction, "composition rolled back")
	}

	if err := tx.commit(); err != nil {
		tx.rollback()
		return apperr.Wrap(err, apperr.CodeTransaction, "commit failed, composition rolled back")
	}
	return nil
}
