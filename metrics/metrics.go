// Package metrics instruments the randomness beacon engine with Prometheus
// collectors: round transition counters, VDF squaring latency, and selection
// sizes. NewRegistry registers the collectors against a
// prometheus.Registerer supplied by the caller; tests pass a fresh
// prometheus.NewRegistry().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors the round engine reports against.
type Registry struct {
	reg prometheus.Registerer

	RoundsCommitted  prometheus.Counter
	RoundsBeaconed   prometheus.Counter
	RoundsFinalized  prometheus.Counter
	RoundErrors      *prometheus.CounterVec
	VDFSquarings     prometheus.Histogram
	SelectionLeaves  prometheus.Histogram
	ArtifactVerified *prometheus.CounterVec
}

// NewRegistry creates a Registry and registers all collectors against reg.
// Passing a fresh prometheus.NewRegistry() is recommended for tests so that
// metric state does not leak across cases.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		reg: reg,
		RoundsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsrng",
			Name:      "rounds_committed_total",
			Help:      "Number of rounds that completed the commit stage.",
		}),
		RoundsBeaconed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsrng",
			Name:      "rounds_beaconed_total",
			Help:      "Number of rounds that completed the beacon stage.",
		}),
		RoundsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsrng",
			Name:      "rounds_finalized_total",
			Help:      "Number of rounds that completed the finalize stage.",
		}),
		RoundErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsrng",
			Name:      "round_errors_total",
			Help:      "Round stage-transition failures by error kind.",
		}, []string{"kind"}),
		VDFSquarings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tsrng",
			Name:      "vdf_squaring_seconds",
			Help:      "Wall-clock time spent in sequential VDF squaring.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		SelectionLeaves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tsrng",
			Name:      "selection_leaves",
			Help:      "Number of leaves selected by finalize per round.",
			Buckets:   prometheus.LinearBuckets(1, 4, 16),
		}),
		ArtifactVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsrng",
			Name:      "artifact_verified_total",
			Help:      "Artifact verification outcomes.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RoundsCommitted,
		m.RoundsBeaconed,
		m.RoundsFinalized,
		m.RoundErrors,
		m.VDFSquarings,
		m.SelectionLeaves,
		m.ArtifactVerified,
	)

	return m
}
