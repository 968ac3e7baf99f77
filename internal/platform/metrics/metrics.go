package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	AuditAppended   prometheus.Counter
	AuditDropped    prometheus.Counter
	UploadsAccepted prometheus.Counter
	UploadsRejected prometheus.Counter
	DBReconnects    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against an explicit registerer so tests can isolate state.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routier_requests_total",
			Help: "Requests dispatched, by matched route template and status.",
		}, []string{"route", "status"}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routier_request_duration_seconds",
			Help:    "Handler latency by matched route template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		AuditAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "routier_audit_entries_appended_total",
			Help: "Audit entries persisted to the ledger.",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "routier_audit_entries_dropped_total",
			Help: "Audit entries lost to a full buffer or failed insert.",
		}),
		UploadsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "routier_uploads_accepted_total",
			Help: "Uploaded files accepted and stored.",
		}),
		UploadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "routier_uploads_rejected_total",
			Help: "Uploaded files skipped by policy checks.",
		}),
		DBReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "routier_db_reconnects_total",
			Help: "Stale connections discarded and transparently re-acquired.",
		}),
	}
}
