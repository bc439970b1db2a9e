package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TransactionsSubmitted prometheus.Counter
	TransactionsExecuted  prometheus.Counter
	TransactionsCancelled prometheus.Counter
	ConfirmationsRecorded prometheus.Counter
	CancellationsRecorded prometheus.Counter
	ExecutionFailures     prometheus.Counter
	ExecutionDuration     prometheus.Histogram
	OwnerCount            prometheus.Gauge
	QuorumThreshold       prometheus.Gauge
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		TransactionsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_transactions_submitted_total",
			Help: "Total number of transactions submitted to the ledger",
		}),
		TransactionsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_transactions_executed_total",
			Help: "Total number of transactions that reached quorum and executed",
		}),
		TransactionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_transactions_cancelled_total",
			Help: "Total number of transactions cancelled by quorum",
		}),
		ConfirmationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_confirmations_total",
			Help: "Total number of confirmation votes recorded",
		}),
		CancellationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_cancellation_requests_total",
			Help: "Total number of cancellation votes recorded",
		}),
		ExecutionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quorumgate_execution_failures_total",
			Help: "Total number of failed target invocations",
		}),
		ExecutionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorumgate_execution_duration_seconds",
			Help:    "Latency of target invocations",
			Buckets: prometheus.DefBuckets,
		}),
		OwnerCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quorumgate_owner_count",
			Help: "Current size of the owner set",
		}),
		QuorumThreshold: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quorumgate_quorum_threshold",
			Help: "Current minimum confirmations required",
		}),
	}
}

// ObserveExecution records the outcome and latency of one target invocation.
func (m *Metrics) ObserveExecution(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ExecutionDuration.Observe(d.Seconds())
	if err != nil {
		m.ExecutionFailures.Inc()
	}
}

// SetQuorum publishes the current owner count and threshold.
func (m *Metrics) SetQuorum(owners int, threshold int) {
	if m == nil {
		return
	}
	m.OwnerCount.Set(float64(owners))
	m.QuorumThreshold.Set(float64(threshold))
}
