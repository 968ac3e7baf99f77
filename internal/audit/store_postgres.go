package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"routier/internal/platform/database"
)

// PostgresStore persists the append-only ledger in the audit_log table.
type PostgresStore struct {
	handle *database.Handle
}

func NewPostgresStore(handle *database.Handle) *PostgresStore {
	return &PostgresStore{handle: handle}
}

// Schema is the ledger DDL; applied by migrations and by the integration
// test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	actor       TEXT,
	action      TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
	source_ip   TEXT,
	user_agent  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_log_actor_idx ON audit_log (actor);
CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at);
`

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	db, err := s.handle.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, payload, source_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Actor, entry.Action, payload, entry.SourceIP, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Actor != "" {
		where = append(where, "actor = "+arg(filter.Actor))
	}
	if filter.Action != "" {
		where = append(where, "action LIKE "+arg("%"+filter.Action+"%"))
	}
	if filter.Search != "" {
		where = append(where, "payload::text ILIKE "+arg("%"+filter.Search+"%"))
	}
	if !filter.From.IsZero() {
		where = append(where, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= "+arg(filter.To))
	}

	query := "SELECT id, actor, action, payload, source_ip, user_agent, created_at FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += " ORDER BY id DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	db, err := s.handle.DB(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &payload, &e.SourceIP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
