// Package sqlstub provides a scriptable database/sql driver for unit tests
// that exercise connection handling and transaction protocol without a real
// server.
package sqlstub

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrRefused is returned for targets scripted to refuse connections.
var ErrRefused = errors.New("sqlstub: connection refused")

// ErrPingFailed is returned for targets scripted to fail liveness checks.
var ErrPingFailed = errors.New("sqlstub: ping failed")

// Driver is a scriptable driver instance. Register it once under a unique
// name per test suite, then open DSNs against it.
type Driver struct {
	mu sync.Mutex

	failOpen map[string]bool
	failPing map[string]bool

	opens     int
	pings     int
	commits   int
	rollbacks int
	execs     []string
	dsns      []string

	// ExecHook, when set, decides the outcome of every Exec. Return nil for
	// success.
	ExecHook func(query string) error
	// QueryHook, when set, serves every Query. The default serves a single
	// "id" row with an incrementing value, which satisfies RETURNING clauses.
	QueryHook func(query string) (cols []string, rows [][]driver.Value, err error)

	nextID int64
}

// New returns an empty scriptable driver.
func New() *Driver {
	return &Driver{
		failOpen: make(map[string]bool),
		failPing: make(map[string]bool),
		nextID:   1,
	}
}

// Register registers d under name. Names must be unique per process.
func Register(name string, d *Driver) {
	sql.Register(name, d)
}

// RefuseOpen scripts dsn to refuse new connections. Scripted DSNs match by
// substring, so a target stays scripted when the caller appends parameters.
func (d *Driver) RefuseOpen(dsn string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOpen[dsn] = true
}

// FailPing scripts dsn to fail liveness checks. Matching follows RefuseOpen.
func (d *Driver) FailPing(dsn string, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failPing[dsn] = fail
}

// scripted reports whether dsn trips any enabled entry in m.
// Callers hold d.mu.
func scripted(m map[string]bool, dsn string) bool {
	for key, enabled := range m {
		if enabled && strings.Contains(dsn, key) {
			return true
		}
	}
	return false
}

// Opens reports how many connections were opened.
func (d *Driver) Opens() int { d.mu.Lock(); defer d.mu.Unlock(); return d.opens }

// Pings reports how many liveness checks ran.
func (d *Driver) Pings() int { d.mu.Lock(); defer d.mu.Unlock(); return d.pings }

// Commits reports committed transactions.
func (d *Driver) Commits() int { d.mu.Lock(); defer d.mu.Unlock(); return d.commits }

// Rollbacks reports rolled-back transactions.
func (d *Driver) Rollbacks() int { d.mu.Lock(); defer d.mu.Unlock(); return d.rollbacks }

// OpenedDSNs returns the DSNs of connections opened so far, in order.
func (d *Driver) OpenedDSNs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dsns))
	copy(out, d.dsns)
	return out
}

// Execs returns the statements executed so far.
func (d *Driver) Execs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.execs))
	copy(out, d.execs)
	return out
}

// Open implements driver.Driver.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if scripted(d.failOpen, dsn) {
		return nil, ErrRefused
	}
	d.opens++
	d.dsns = append(d.dsns, dsn)
	return &conn{driver: d, dsn: dsn}, nil
}

type conn struct {
	driver *Driver
	dsn    string
}

var (
	_ driver.Pinger         = (*conn)(nil)
	_ driver.ExecerContext  = (*conn)(nil)
	_ driver.QueryerContext = (*conn)(nil)
	_ driver.ConnBeginTx    = (*conn)(nil)
)

func (c *conn) Ping(ctx context.Context) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()
	c.driver.pings++
	if scripted(c.driver.failPing, c.dsn) {
		return ErrPingFailed
	}
	return nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.driver.mu.Lock()
	hook := c.driver.ExecHook
	c.driver.execs = append(c.driver.execs, query)
	c.driver.mu.Unlock()

	if hook != nil {
		if err := hook(query); err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.driver.mu.Lock()
	hook := c.driver.QueryHook
	c.driver.mu.Unlock()

	if hook != nil {
		cols, vals, err := hook(query)
		if err != nil {
			return nil, err
		}
		return &rows{cols: cols, vals: vals}, nil
	}

	c.driver.mu.Lock()
	id := c.driver.nextID
	c.driver.nextID++
	c.driver.mu.Unlock()
	return &rows{cols: []string{"id"}, vals: [][]driver.Value{{id}}}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return &tx{driver: c.driver}, nil
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("sqlstub: prepared statements not supported")
}

func (c *conn) Begin() (driver.Tx, error) {
	return &tx{driver: c.driver}, nil
}

func (c *conn) Close() error { return nil }

type tx struct {
	driver *Driver
}

func (t *tx) Commit() error {
	t.driver.mu.Lock()
	defer t.driver.mu.Unlock()
	t.driver.commits++
	return nil
}

func (t *tx) Rollback() error {
	t.driver.mu.Lock()
	defer t.driver.mu.Unlock()
	t.driver.rollbacks++
	return nil
}

type rows struct {
	cols []string
	vals [][]driver.Value
	pos  int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.pos >= len(r.vals) {
		return io.EOF
	}
	copy(dest, r.vals[r.pos])
	r.pos++
	return nil
}
