package tangelo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	reconcileDuration *prometheus.HistogramVec
	instancesAdded    *prometheus.CounterVec
	instancesRemoved  prometheus.Counter
	trackedInstances  prometheus.Gauge
	modeTransitions   *prometheus.CounterVec
	operations        *prometheus.HistogramVec
	errors            *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector with its own registry
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "tangelo"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of registry reconciles",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	pmc.instancesAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_added_total",
			Help:      "Total number of instances that became tracked",
		},
		[]string{"mode"},
	)

	pmc.instancesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_removed_total",
			Help:      "Total number of instances that stopped being tracked",
		},
	)

	pmc.trackedInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_instances",
			Help:      "Number of instances in the registry",
		},
	)

	pmc.modeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Total number of instance mode transitions",
		},
		[]string{"from_mode", "to_mode"},
	)

	pmc.operations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lifecycle_operation_duration_seconds",
			Help:      "Duration of start, stop and restart operations",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and kind",
		},
		[]string{"operation", "kind"},
	)

	pmc.registry.MustRegister(
		pmc.reconcileDuration,
		pmc.instancesAdded,
		pmc.instancesRemoved,
		pmc.trackedInstances,
		pmc.modeTransitions,
		pmc.operations,
		pmc.errors,
	)

	return pmc
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ReconcileDuration records how long one reconcile took
func (pmc *PrometheusMetricsCollector) ReconcileDuration(duration time.Duration, err error) {
	pmc.reconcileDuration.WithLabelValues(statusLabel(err)).Observe(duration.Seconds())
}

// InstanceAdded records an instance that became tracked
func (pmc *PrometheusMetricsCollector) InstanceAdded(mode Mode) {
	pmc.instancesAdded.WithLabelValues(mode.String()).Inc()
}

// InstancesRemoved records instances that stopped being tracked
func (pmc *PrometheusMetricsCollector) InstancesRemoved(n int) {
	pmc.instancesRemoved.Add(float64(n))
}

// TrackedInstances records the registry size
func (pmc *PrometheusMetricsCollector) TrackedInstances(n int) {
	pmc.trackedInstances.Set(float64(n))
}

// ModeTransition records an instance moving between modes
func (pmc *PrometheusMetricsCollector) ModeTransition(from, to Mode) {
	pmc.modeTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// LifecycleOperation records a start, stop or restart
func (pmc *PrometheusMetricsCollector) LifecycleOperation(op Operation, duration time.Duration, err error) {
	pmc.operations.WithLabelValues(op.String(), statusLabel(err)).Observe(duration.Seconds())
}

// Error records a failure by operation and kind
func (pmc *PrometheusMetricsCollector) Error(op Operation, kind string) {
	pmc.errors.WithLabelValues(op.String(), kind).Inc()
}

// Registry returns the Prometheus registry for exposition
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Compile-time interface compliance check
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
