// Package metrics exposes the page-watch engine's Prometheus metrics,
// grounded on the teacher's pkg/metrics registry (registry.go, webhook.go):
// a lazily-initialized singleton Registry grouping related metrics under a
// shared namespace, instead of package-level globals scattered across
// components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pagewatch"

// Registry is the central collection of metrics the Command/Query API's
// /metrics endpoint exposes. The Supervisor, Dispatcher, Failure Tracker
// and Activity Log each take DefaultRegistry() in their constructor; the
// Pipeline receives it through its optional Metrics field.
type Registry struct {
	// CyclesTotal counts completed Cycle Pipeline runs by outcome:
	// changed, unchanged, error.
	CyclesTotal *prometheus.CounterVec

	// CycleDurationSeconds tracks wall-clock time of a full cycle
	// (wait-ready + extract + hash + dispatch), buckets tuned for
	// sub-second to tens-of-seconds page loads.
	CycleDurationSeconds prometheus.Histogram

	// DispatchDurationSeconds tracks webhook POST latency.
	DispatchDurationSeconds prometheus.Histogram

	// DispatchesTotal counts webhook dispatch attempts by outcome:
	// success, http_error, network_error, timeout.
	DispatchesTotal *prometheus.CounterVec

	// ConsecutiveFailures is a gauge of the current per-target failure
	// streak, labeled by target_id, mirrored from the Failure Tracker.
	ConsecutiveFailures *prometheus.GaugeVec

	// AutoStopsTotal counts targets stopped by the Failure Tracker's
	// threshold, as opposed to an explicit stop_target call.
	AutoStopsTotal prometheus.Counter

	// ActivityLogSize is the current occupancy of the Activity Log ring
	// buffer (0 to its fixed capacity).
	ActivityLogSize prometheus.Gauge

	// ActiveTargets is the number of currently running watch targets.
	ActiveTargets prometheus.Gauge
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide singleton Registry, registering
// its collectors with the default Prometheus registerer on first call.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = newRegistry()
	})
	return defaultRegistry
}

func newRegistry() *Registry {
	return &Registry{
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "total",
				Help:      "Total number of Cycle Pipeline runs by outcome.",
			},
			[]string{"outcome"}, // changed|unchanged|error
		),
		CycleDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "cycle",
				Name:      "duration_seconds",
				Help:      "Duration of a full Cycle Pipeline run.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		DispatchDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of outbound webhook POST requests.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "dispatches_total",
				Help:      "Total number of webhook dispatch attempts by outcome.",
			},
			[]string{"outcome"}, // success|http_error|network_error|timeout
		),
		ConsecutiveFailures: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "failure_tracker",
				Name:      "consecutive_failures",
				Help:      "Current consecutive failure count per target.",
			},
			[]string{"target_id"},
		),
		AutoStopsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "failure_tracker",
				Name:      "auto_stops_total",
				Help:      "Total number of targets auto-stopped by the failure threshold.",
			},
		),
		ActivityLogSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "activity_log",
				Name:      "size",
				Help:      "Current number of entries held in the Activity Log ring buffer.",
			},
		),
		ActiveTargets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "supervisor",
				Name:      "active_targets",
				Help:      "Number of currently running watch targets.",
			},
		),
	}
}
