package tangelo

import "time"

// MetricsCollector receives instrumentation from the registry and the
// controller
type MetricsCollector interface {
	// ReconcileDuration records how long one reconcile took
	ReconcileDuration(duration time.Duration, err error)

	// InstanceAdded records an instance that became tracked
	InstanceAdded(mode Mode)

	// InstancesRemoved records instances that stopped being tracked
	InstancesRemoved(n int)

	// TrackedInstances records the registry size after a reconcile
	TrackedInstances(n int)

	// ModeTransition records an instance moving between modes
	ModeTransition(from, to Mode)

	// LifecycleOperation records a start, stop or restart
	LifecycleOperation(op Operation, duration time.Duration, err error)

	// Error records a failure by operation and error kind
	Error(op Operation, kind string)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) ReconcileDuration(duration time.Duration, err error)         {}
func (n *noopMetricsCollector) InstanceAdded(mode Mode)                                     {}
func (n *noopMetricsCollector) InstancesRemoved(count int)                                  {}
func (n *noopMetricsCollector) TrackedInstances(count int)                                  {}
func (n *noopMetricsCollector) ModeTransition(from, to Mode)                                {}
func (n *noopMetricsCollector) LifecycleOperation(op Operation, d time.Duration, err error) {}
func (n *noopMetricsCollector) Error(op Operation, kind string)                             {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
