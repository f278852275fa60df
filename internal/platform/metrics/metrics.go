package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing, which keeps unit tests free of registries.
type Metrics struct {
	KeyWraps          *prometheus.CounterVec
	KeyWrapFallbacks  prometheus.Counter
	KeyUnwrapFailures *prometheus.CounterVec
	ConsentOps        *prometheus.CounterVec
	GrantsExpired     prometheus.Counter
	LedgerFailures    *prometheus.CounterVec
	RewrapEvents      *prometheus.CounterVec
	AuditEntries      *prometheus.CounterVec
	EndpointLatency   *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		KeyWraps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_key_wraps_total",
			Help: "Data keys wrapped, by backend that produced the blob",
		}, []string{"backend"}),
		KeyWrapFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "medblock_key_wrap_fallbacks_total",
			Help: "Wraps that fell back from the remote KMS to the local backend",
		}),
		KeyUnwrapFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_key_unwrap_failures_total",
			Help: "Unwrap attempts that failed, by backend",
		}, []string{"backend"}),
		ConsentOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_consent_operations_total",
			Help: "Consent ledger operations by name and outcome code",
		}, []string{"operation", "outcome"}),
		GrantsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "medblock_grants_expired_total",
			Help: "Grants transitioned to expired by the sweep",
		}),
		LedgerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_ledger_mirror_failures_total",
			Help: "Ledger mirror submissions that failed and were absorbed",
		}, []string{"transaction"}),
		RewrapEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_rewrap_events_total",
			Help: "Grant events seen by the re-wrap dispatcher, by outcome",
		}, []string{"outcome"}),
		AuditEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medblock_audit_entries_total",
			Help: "Audit entries by outcome (written, dropped, failed)",
		}, []string{"outcome"}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medblock_endpoint_latency_seconds",
			Help:    "HTTP endpoint latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncKeyWrap(backend string) {
	if m == nil {
		return
	}
	m.KeyWraps.WithLabelValues(backend).Inc()
}

func (m *Metrics) IncKeyWrapFallback() {
	if m == nil {
		return
	}
	m.KeyWrapFallbacks.Inc()
}

func (m *Metrics) IncKeyUnwrapFailure(backend string) {
	if m == nil {
		return
	}
	m.KeyUnwrapFailures.WithLabelValues(backend).Inc()
}

func (m *Metrics) IncConsentOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.ConsentOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) AddGrantsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.GrantsExpired.Add(float64(n))
}

func (m *Metrics) IncLedgerFailure(transaction string) {
	if m == nil {
		return
	}
	m.LedgerFailures.WithLabelValues(transaction).Inc()
}

func (m *Metrics) IncRewrap(outcome string) {
	if m == nil {
		return
	}
	m.RewrapEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAudit(outcome string) {
	if m == nil {
		return
	}
	m.AuditEntries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEndpointLatency(endpoint string, d time.Duration) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}
