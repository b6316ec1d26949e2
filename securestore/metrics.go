package securestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/leo/metric"
)

// storeMetrics holds Prometheus metrics for secure store operations.
type storeMetrics struct {
	// Operation counters and latency
	saveOps     prometheus.Counter
	loadOps     prometheus.Counter
	deleteOps   prometheus.Counter
	saveLatency prometheus.Histogram
	loadLatency prometheus.Histogram

	// Optimistic write conflicts (surfaced as values, still counted)
	conflicts prometheus.Counter

	// Queue dispatch by target and status
	dispatches *prometheus.CounterVec

	// ID allocations served
	idsAllocated prometheus.Counter
}

// newStoreMetrics creates and registers secure store metrics with the
// provided registry. A nil registry disables metrics.
func newStoreMetrics(registry *metric.MetricsRegistry) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &storeMetrics{
		saveOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "save_operations_total",
			Help:      "Total number of save operations",
		}),
		loadOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "load_operations_total",
			Help:      "Total number of load operations",
		}),
		deleteOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "delete_operations_total",
			Help:      "Total number of delete operations",
		}),
		saveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "save_duration_seconds",
			Help:      "Save operation latency",
			Buckets:   prometheus.DefBuckets,
		}),
		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "load_duration_seconds",
			Help:      "Load operation latency",
			Buckets:   prometheus.DefBuckets,
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "optimistic_conflicts_total",
			Help:      "Optimistic writes that lost the ETag race",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "queue_dispatches_total",
			Help:      "Notification dispatches by queue and status",
		}, []string{"queue", "status"}),
		idsAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leo",
			Subsystem: "securestore",
			Name:      "ids_allocated_total",
			Help:      "IDs handed out by the generator",
		}),
	}

	const service = "securestore"
	registrations := []struct {
		name string
		err  error
	}{
		{"save_operations_total", registry.RegisterCounter(service, "save_operations_total", m.saveOps)},
		{"load_operations_total", registry.RegisterCounter(service, "load_operations_total", m.loadOps)},
		{"delete_operations_total", registry.RegisterCounter(service, "delete_operations_total", m.deleteOps)},
		{"save_duration_seconds", registry.RegisterHistogram(service, "save_duration_seconds", m.saveLatency)},
		{"load_duration_seconds", registry.RegisterHistogram(service, "load_duration_seconds", m.loadLatency)},
		{"optimistic_conflicts_total", registry.RegisterCounter(service, "optimistic_conflicts_total", m.conflicts)},
		{"queue_dispatches_total", registry.RegisterCounterVec(service, "queue_dispatches_total", m.dispatches)},
		{"ids_allocated_total", registry.RegisterCounter(service, "ids_allocated_total", m.idsAllocated)},
	}
	for _, reg := range registrations {
		if reg.err != nil {
			return nil, reg.err
		}
	}

	return m, nil
}

// Nil-safe recording helpers; metrics are optional.

func (s *Store) metricsSave(d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.saveOps.Inc()
	s.metrics.saveLatency.Observe(d.Seconds())
}

func (s *Store) metricsLoad(d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.loadOps.Inc()
	s.metrics.loadLatency.Observe(d.Seconds())
}

func (s *Store) metricsDelete(_ time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.deleteOps.Inc()
}

func (s *Store) metricsConflict() {
	if s.metrics == nil {
		return
	}
	s.metrics.conflicts.Inc()
}

func (s *Store) metricsDispatch(queueName string, ok bool) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	s.metrics.dispatches.WithLabelValues(queueName, status).Inc()
}

func (s *Store) metricsIDAllocated() {
	if s.metrics == nil {
		return
	}
	s.metrics.idsAllocated.Inc()
}
