// Package database produces live connection handles for the rest of the
// system. It owns target fallback ordering, connect timeouts, session tuning
// and liveness repair; callers only ever see a ready handle or a
// connectivity-class error.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"routier/internal/platform/metrics"
	"routier/pkg/apperr"
)

const (
	// connectTimeout bounds a single candidate attempt before the next
	// fallback is tried.
	connectTimeout = 60 * time.Second

	// Session timeouts in milliseconds, carried in the connection string so
	// every connection the pool opens starts tuned. Generous limits: the
	// admin UI runs long filtered reports and batch imports.
	sessionStatementTimeoutMS = "300000" // 5min
	sessionIdleInTxTimeoutMS  = "600000" // 10min
)

// sessionParams are the server runtime settings appended to each target DSN.
var sessionParams = [...][2]string{
	{"statement_timeout", sessionStatementTimeoutMS},
	{"idle_in_transaction_session_timeout", sessionIdleInTxTimeoutMS},
}

// Target is one connection candidate.
type Target struct {
	Name string
	DSN  string
}

// Options configures a Manager.
type Options struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Production bool
	Primary    Target
	// Fallbacks are attempted in order after the primary, only outside
	// production, to tolerate heterogeneous local database setups.
	Fallbacks []Target

	// DriverName overrides the SQL driver; tests register stubs. Defaults to
	// lib/pq's "postgres".
	DriverName string
	// ConnectTimeout overrides the per-candidate dial ceiling.
	ConnectTimeout time.Duration
}

// Manager hands out database handles and repairs stale ones. It is safe for
// concurrent use; each Acquire is independent.
type Manager struct {
	log        *slog.Logger
	metrics    *metrics.Metrics
	production bool
	targets    []Target
	driver     string
	timeout    time.Duration
}

// NewManager builds a Manager from Options.
func NewManager(opts Options) *Manager {
	driver := opts.DriverName
	if driver == "" {
		driver = "postgres"
	}
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = connectTimeout
	}

	targets := []Target{opts.Primary}
	if !opts.Production {
		targets = append(targets, opts.Fallbacks...)
	}

	return &Manager{
		log:        opts.Logger,
		metrics:    opts.Metrics,
		production: opts.Production,
		targets:    targets,
		driver:     driver,
		timeout:    timeout,
	}
}

// Acquire returns a ready-to-use handle, trying targets in order. Individual
// candidate failures are logged, never surfaced; only total exhaustion errors.
func (m *Manager) Acquire(ctx context.Context) (*sql.DB, error) {
	var lastErr error
	for _, target := range m.targets {
		db, err := m.try(ctx, target)
		if err != nil {
			lastErr = err
			m.log.DebugContext(ctx, "database target unreachable",
				"target", target.Name,
				"error", err,
			)
			continue
		}
		return db, nil
	}
	return nil, m.exhausted(lastErr)
}

// Ensure verifies liveness with a round-trip and transparently re-acquires on
// failure. A healthy handle is returned unchanged with no reconnection.
func (m *Manager) Ensure(ctx context.Context, db *sql.DB) (*sql.DB, error) {
	if db != nil {
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
		// Stale handle: the server or network dropped us. Discard and retry.
		_ = db.Close()
		m.metrics.DBReconnects.Inc()
		m.log.WarnContext(ctx, "stale database connection discarded, re-acquiring")
	}
	return m.Acquire(ctx)
}

func (m *Manager) try(ctx context.Context, target Target) (*sql.DB, error) {
	db, err := sql.Open(m.driver, tuneDSN(target.DSN))
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// tuneDSN rewrites a DSN so the session timeouts travel in the startup
// packet, reaching every connection the pool opens rather than only the one
// that would serve a SET SESSION. A timeout already present in the DSN wins.
// DSNs in neither the URL nor the key=value form pass through untouched.
func tuneDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		for _, p := range sessionParams {
			if q.Get(p[0]) == "" {
				q.Set(p[0], p[1])
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
	if !strings.Contains(dsn, "=") {
		return dsn
	}
	for _, p := range sessionParams {
		if !strings.Contains(dsn, p[0]+"=") {
			dsn += " " + p[0] + "=" + p[1]
		}
	}
	return dsn
}

// exhausted builds the single caller-visible connectivity error. Topology
// detail is only included outside production.
func (m *Manager) exhausted(lastErr error) error {
	if m.production {
		return apperr.New(apperr.CodeConnectivity, "database unavailable")
	}

	described := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		described = append(described, fmt.Sprintf("%s (%s)", t.Name, describe(t.DSN)))
	}
	return apperr.Wrap(lastErr, apperr.CodeConnectivity,
		fmt.Sprintf("no database target reachable: tried %s", strings.Join(described, ", ")))
}

// describe renders a DSN as user@host/db with the password elided.
func describe(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" && u.Path == "" {
		return "unparseable dsn"
	}
	user := ""
	if u.User != nil {
		user = u.User.Username() + "@"
	}
	host := u.Host
	if host == "" {
		host = "local socket"
	}
	return user + host + u.Path
}
