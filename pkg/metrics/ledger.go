package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks ledger RPC calls and donation state transitions.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	calls       *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_calls_total",
		Help:      "Ledger RPC calls by operation and result.",
	}, []string{"operation", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ledger_call_duration_seconds",
		Help:      "Latency of ledger RPC calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"operation"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "donation_transitions_total",
		Help:      "Donation status transitions applied.",
	}, []string{"to"})
	reg.MustRegister(calls, latency, transitions)
	return &LedgerMetrics{calls: calls, latency: latency, transitions: transitions}
}

// ObserveCall records one ledger call. result is a short label such as
// "complete", "failed", "pending" or "error".
func (m *LedgerMetrics) ObserveCall(operation, result string, took time.Duration) {
	if m == nil || m.calls == nil {
		return
	}
	m.calls.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
	m.latency.WithLabelValues(normalizeLabel(operation)).Observe(took.Seconds())
}

// IncTransition counts a donation leaving pending.
func (m *LedgerMetrics) IncTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}
