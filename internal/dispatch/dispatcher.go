// Package dispatch owns request routing and the envelope contract. The route
// table is compiled once at startup and immutable afterwards; matching is
// first-registration-wins, which makes registration order a semantic part of
// the table rather than an accident.
package dispatch

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"routier/internal/platform/metrics"
	"routier/pkg/apperr"
)

// Recorder is the slice of the audit recorder the wrapper path needs.
type Recorder interface {
	Record(ctx context.Context, action string, payload map[string]any)
}

// Dispatcher matches requests against its ordered route table and invokes the
// matched handler. It is the single error-translation boundary: handlers
// return typed failures and the dispatcher maps them to statuses and
// envelopes.
type Dispatcher struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder
	tracer   trace.Tracer

	// prefix is the front-controller mount point stripped from incoming
	// paths before matching, e.g. "/api".
	prefix string
	routes []compiledRoute
	sealed bool
}

// New builds an empty dispatcher mounted under prefix.
func New(log *slog.Logger, m *metrics.Metrics, recorder Recorder, prefix string) *Dispatcher {
	return &Dispatcher{
		log:      log,
		metrics:  m,
		recorder: recorder,
		tracer:   otel.Tracer("routier/dispatch"),
		prefix:   strings.TrimSuffix(prefix, "/"),
	}
}

// Register compiles and appends routes in order. Two templates that can match
// the same concrete path are allowed; the earlier registration wins, and that
// ordering is part of the table's contract.
func (d *Dispatcher) Register(routes ...Route) error {
	if d.sealed {
		return errSealed
	}
	for _, r := range routes {
		cr, err := compile(r)
		if err != nil {
			return err
		}
		d.routes = append(d.routes, cr)
	}
	return nil
}

// MustRegister is Register for startup wiring, where a bad template is a
// programming error.
func (d *Dispatcher) MustRegister(routes ...Route) {
	if err := d.Register(routes...); err != nil {
		panic(err)
	}
}

// Seal freezes the table. Served requests never mutate it, so a sealed
// dispatcher is safe for concurrent use.
func (d *Dispatcher) Seal() { d.sealed = true }

var errSealed = apperr.New(apperr.CodeInternal, "route table is sealed")

// ServeHTTP resolves the effective path, scans the table in registration
// order, and runs the first route whose method and template both match.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := newRequest(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	req.Path = d.effectivePath(r, req)

	cr, params, ok := d.lookup(r.Method, req.Path)
	if !ok {
		d.metrics.RequestsTotal.WithLabelValues("unmatched", "404").Inc()
		d.log.DebugContext(ctx, "no route matched", "method", r.Method, "path", req.Path)
		writeNotFound(w, r.Method, req.Path)
		return
	}
	req.Params = params

	ctx, span := d.tracer.Start(ctx, cr.template)
	defer span.End()

	start := time.Now()
	resp, err := d.invoke(ctx, cr, req)
	d.metrics.RequestLatency.WithLabelValues(cr.template).Observe(time.Since(start).Seconds())

	if err != nil {
		status := apperr.StatusOf(err)
		d.metrics.RequestsTotal.WithLabelValues(cr.template, strconv.Itoa(status)).Inc()
		if status >= http.StatusInternalServerError {
			d.log.ErrorContext(ctx, "handler failed", "route", cr.template, "error", err)
		} else {
			d.log.DebugContext(ctx, "handler rejected request", "route", cr.template, "error", err)
		}
		writeFailure(w, err)
		return
	}

	if cr.auditAction != "" {
		d.recordAudit(ctx, cr, req, resp)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	d.metrics.RequestsTotal.WithLabelValues(cr.template, strconv.Itoa(status)).Inc()
	writeSuccess(w, cr.template, resp)
}

// invoke runs the handler behind a recover barrier so a panicking handler
// degrades to a 500 envelope instead of a dropped connection.
func (d *Dispatcher) invoke(ctx context.Context, cr compiledRoute, req *Request) (resp *Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.ErrorContext(ctx, "handler panicked", "route", cr.template, "panic", rec)
			resp, err = nil, apperr.Newf(apperr.CodeInternal, "internal server error")
		}
	}()

	resp, err = cr.handler(ctx, req)
	if err == nil && resp == nil {
		err = apperr.New(apperr.CodeInternal, "handler returned no response")
	}
	return resp, err
}

// effectivePath prefers the explicit route override (query parameter or form
// field) and otherwise strips the front-controller prefix from the URL path.
func (d *Dispatcher) effectivePath(r *http.Request, req *Request) string {
	if override := req.Query.Get("route"); override != "" {
		return override
	}
	if override := req.FormValue("route"); override != "" {
		return override
	}

	path := r.URL.Path
	if d.prefix != "" {
		path = strings.TrimPrefix(path, d.prefix)
	}
	if path == "" {
		path = "/"
	}
	return path
}

func (d *Dispatcher) lookup(method, path string) (compiledRoute, []string, bool) {
	for _, cr := range d.routes {
		if cr.method != method {
			continue
		}
		if params, ok := cr.match(path); ok {
			return cr, params, true
		}
	}
	return compiledRoute{}, nil, false
}

// recordAudit appends the wrapper-path ledger entry: exactly one per
// successful audited call, best-effort.
func (d *Dispatcher) recordAudit(ctx context.Context, cr compiledRoute, req *Request, resp *Response) {
	payload := map[string]any{
		"method": req.Method,
		"route":  cr.template,
	}
	if len(req.Params) > 0 {
		payload["params"] = req.Params
	}
	for k, v := range resp.AuditPayload {
		payload[k] = v
	}
	d.recorder.Record(ctx, cr.auditAction, payload)
}
