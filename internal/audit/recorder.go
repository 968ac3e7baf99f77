// Package audit is the append-only ledger of mutating actions. Recording is
// best-effort by contract: a failure to append never fails the business
// operation it describes.
package audit

import (
	"context"
	"log/slog"
	"time"

	"routier/internal/platform/metrics"
	"routier/pkg/requestcontext"
)

// Recorder accepts entries without blocking the response path. Entries flow
// through a buffered inbox drained by Run; a full inbox drops the entry,
// counted and logged for operational visibility.
type Recorder struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
	inbox   chan Entry
}

func NewRecorder(store Store, log *slog.Logger, m *metrics.Metrics, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store:   store,
		log:     log,
		metrics: m,
		inbox:   make(chan Entry, buffer),
	}
}

// Record captures actor, origin IP and user agent from the request context
// and enqueues one entry. It never blocks and never fails the caller.
func (r *Recorder) Record(ctx context.Context, action string, payload map[string]any) {
	entry := Entry{
		Actor:     nullable(requestcontext.Actor(ctx)),
		Action:    action,
		Payload:   payload,
		SourceIP:  nullable(requestcontext.ClientIP(ctx)),
		UserAgent: nullable(requestcontext.UserAgent(ctx)),
		CreatedAt: requestcontext.Now(ctx),
	}

	select {
	case r.inbox <- entry:
	default:
		r.metrics.AuditDropped.Inc()
		r.log.Warn("audit entry dropped: inbox full", "action", action)
	}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// already buffered and returns nil. Cancellation is how the worker is asked
// to stop, so it never surfaces as an error to the process lifecycle. Append
// failures are logged and counted, never returned mid-stream: the ledger is
// best-effort, the worker stays up.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.Flush()
			return nil
		case entry := <-r.inbox:
			r.append(ctx, entry)
		}
	}
}

// Flush synchronously drains whatever is already buffered with a short
// deadline. Run calls it on shutdown; tests call it to observe entries.
func (r *Recorder) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case entry := <-r.inbox:
			r.append(ctx, entry)
		default:
			return
		}
	}
}

func (r *Recorder) append(ctx context.Context, entry Entry) {
	if err := r.store.Append(ctx, entry); err != nil {
		r.metrics.AuditDropped.Inc()
		r.log.Error("audit append failed", "action", entry.Action, "error", err)
		return
	}
	r.metrics.AuditAppended.Inc()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
