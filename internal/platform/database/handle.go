package database

import (
	"context"
	"database/sql"
	"sync"
)

// Handle is the self-healing connection the stores hold. Every use goes
// through DB, which runs the liveness check and transparently swaps in a
// fresh connection when the old one went stale, so business logic never sees
// transient network or server timeouts.
type Handle struct {
	mu      sync.Mutex
	manager *Manager
	db      *sql.DB
}

func NewHandle(manager *Manager) *Handle {
	return &Handle{manager: manager}
}

// DB returns a live database handle or a connectivity-class error.
func (h *Handle) DB(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	db, err := h.manager.Ensure(ctx, h.db)
	if err != nil {
		h.db = nil
		return nil, err
	}
	h.db = db
	return db, nil
}

// Close releases the underlying connection if one is held.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
