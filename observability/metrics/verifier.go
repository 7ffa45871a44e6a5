package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VerifierMetrics tracks how DID ownership strategies behave in production.
// Probe failures are split into transient and permanent buckets for
// observability even though both fall through to the next probe.
type VerifierMetrics struct {
	strategyAttempts *prometheus.CounterVec
	probeFailures    *prometheus.CounterVec
	verifications    *prometheus.CounterVec
}

var (
	verifierOnce     sync.Once
	verifierRegistry *VerifierMetrics
)

// Verifier returns the process-wide verification metrics, registering them on
// first use.
func Verifier() *VerifierMetrics {
	verifierOnce.Do(func() {
		verifierRegistry = &VerifierMetrics{
			strategyAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "did_strategy_attempts_total",
				Help: "Count of ownership strategy attempts by strategy and outcome.",
			}, []string{"strategy", "outcome"}),
			probeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "did_probe_failures_total",
				Help: "Count of on-chain probe failures by probe and failure class.",
			}, []string{"probe", "class"}),
			verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "did_verifications_total",
				Help: "Count of completed verification requests by method and result.",
			}, []string{"method", "result"}),
		}
		prometheus.MustRegister(
			verifierRegistry.strategyAttempts,
			verifierRegistry.probeFailures,
			verifierRegistry.verifications,
		)
	})
	return verifierRegistry
}

// ObserveStrategy records one strategy attempt outcome: match, miss or error.
func (m *VerifierMetrics) ObserveStrategy(strategy, outcome string) {
	if m == nil {
		return
	}
	m.strategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// ObserveProbeFailure records a failed probe with its failure class
// (transient for RPC errors, permanent for reverts and missing functions).
func (m *VerifierMetrics) ObserveProbeFailure(probe, class string) {
	if m == nil {
		return
	}
	m.probeFailures.WithLabelValues(probe, class).Inc()
}

// ObserveVerification records a finished verification request.
func (m *VerifierMetrics) ObserveVerification(method, result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(method, result).Inc()
}
