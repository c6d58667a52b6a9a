package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricSubmitTotal        = "ledger_submit_total"
	MetricProbeTotal         = "ledger_probe_total"
	MetricDegradedWriteTotal = "ledger_degraded_writes_total"
)

// Submission outcome label values.
const (
	outcomeSettled     = "settled"
	outcomeRejected    = "rejected"
	outcomeUnreachable = "unreachable"
)

// Metrics contains Prometheus metrics for ledger interactions.
// All operations are thread-safe. A nil *Metrics is a no-op, so wiring
// metrics stays optional in tests.
type Metrics struct {
	submitTotal        *prometheus.CounterVec
	probeTotal         *prometheus.CounterVec
	degradedWriteTotal *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		submitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSubmitTotal,
			Help: "Total number of ledger transaction submissions by method and outcome",
		}, []string{"method", "outcome"}),
		probeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricProbeTotal,
			Help: "Total number of ledger liveness probes by result",
		}, []string{"result"}),
		degradedWriteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDegradedWriteTotal,
			Help: "Total number of mirror-only writes recorded with an offline reference token",
		}, []string{"operation"}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.submitTotal,
		m.probeTotal,
		m.degradedWriteTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeSubmit(method, outcome string) {
	if m == nil {
		return
	}
	m.submitTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeProbe(reachable bool) {
	if m == nil {
		return
	}
	result := "reachable"
	if !reachable {
		result = "unreachable"
	}
	m.probeTotal.WithLabelValues(result).Inc()
}

// ObserveDegradedWrite counts a mirror-only write that fell back to an
// offline reference token.
func (m *Metrics) ObserveDegradedWrite(operation string) {
	if m == nil {
		return
	}
	m.degradedWriteTotal.WithLabelValues(operation).Inc()
}
