package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Metrics implements gocredits.Metrics using Prometheus.
type Metrics struct {
	grantsTotal            *prometheus.CounterVec
	creditsGrantedTotal    *prometheus.CounterVec
	rejectionsTotal        *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec
	storeErrorsTotal       *prometheus.CounterVec
	ledgerDuration         prometheus.Histogram
	ledgerErrorsTotal      prometheus.Counter
	circuitBreakerChanges  *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		grantsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grants_total",
			Help:      "Total number of credit grants emitted, by tier.",
		}, []string{"tier"}),

		creditsGrantedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Total number of credits granted, by tier.",
		}, []string{"tier"}),

		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rejections_total",
			Help:      "Total number of checkout sessions not granted, by reason.",
		}, []string{"reason"}),

		storeOperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of processed-session store operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of processed-session store errors.",
		}, []string{"operation"}),

		ledgerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_dispatch_duration_seconds",
			Help:      "Duration of grant dispatches to the credit ledger in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		ledgerErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_errors_total",
			Help:      "Total number of failed grant dispatches.",
		}),

		circuitBreakerChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),
	}
}

func (m *Metrics) RecordGrant(tierID string, credits int64) {
	m.grantsTotal.WithLabelValues(tierID).Inc()
	m.creditsGrantedTotal.WithLabelValues(tierID).Add(float64(credits))
}

func (m *Metrics) RecordRejection(reason string) {
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrorsTotal.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordLedgerOperation(duration time.Duration, err error) {
	m.ledgerDuration.Observe(duration.Seconds())
	if err != nil {
		m.ledgerErrorsTotal.Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerChanges.WithLabelValues(state).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) gocredits.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
