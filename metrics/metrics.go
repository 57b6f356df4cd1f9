// Package metrics exposes Prometheus instrumentation for the scheduler
// and task-execution engine, ported from graph/metrics.go's
// PrometheusMetrics and relabeled for processes/tasks instead of
// runs/nodes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects scheduler and engine counters under the "acts"
// namespace.
type Metrics struct {
	queueDepth     prometheus.Gauge
	inflightTasks  prometheus.Gauge
	taskLatency    *prometheus.HistogramVec
	catchesFired   *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	retries        *prometheus.CounterVec
}

// New registers and returns a Metrics collector on reg. Pass nil to use
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "acts",
			Name:      "queue_depth",
			Help:      "Number of signals pending in the scheduler's FIFO queue",
		}),
		inflightTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "acts",
			Name:      "inflight_tasks",
			Help:      "Number of tasks currently in the Running state",
		}),
		taskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acts",
			Name:      "task_latency_ms",
			Help:      "Duration in milliseconds of one task execution pass, labelled with the state the task reached",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"kind", "state"}),
		catchesFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acts",
			Name:      "catches_fired_total",
			Help:      "Number of catch handlers dispatched on task errors",
		}, []string{"on"}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "acts",
			Name:      "process_cache_evictions_total",
			Help:      "Number of processes evicted from the bounded process cache",
		}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acts",
			Name:      "retries_total",
			Help:      "Cumulative retry attempts across all tasks",
		}, []string{"kind", "reason"}),
	}
}

// UpdateQueueDepth sets the scheduler's current pending-signal count.
func (m *Metrics) UpdateQueueDepth(depth int) { m.queueDepth.Set(float64(depth)) }

// UpdateInflightTasks sets the current count of Running tasks.
func (m *Metrics) UpdateInflightTasks(count int) { m.inflightTasks.Set(float64(count)) }

// RecordTaskLatency observes how long a task ran before reaching state.
func (m *Metrics) RecordTaskLatency(kind, state string, d time.Duration) {
	m.taskLatency.WithLabelValues(kind, state).Observe(float64(d.Milliseconds()))
}

// IncrementCatchesFired records a catch dispatch for the given "on" code.
func (m *Metrics) IncrementCatchesFired(on string) {
	m.catchesFired.WithLabelValues(on).Inc()
}

// IncrementCacheEvictions records one process eviction from the bounded
// process cache.
func (m *Metrics) IncrementCacheEvictions() { m.cacheEvictions.Inc() }

// IncrementRetries records a retry attempt for kind, with reason.
func (m *Metrics) IncrementRetries(kind, reason string) {
	m.retries.WithLabelValues(kind, reason).Inc()
}
