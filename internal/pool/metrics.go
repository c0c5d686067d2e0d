package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors pool state into a Prometheus registry for an external
// dashboard. The engine itself only reads PoolMetrics snapshots.
type Metrics struct {
	registry prometheus.Registerer

	completed prometheus.Counter
	failed    prometheus.Counter
	retries   prometheus.Counter
	resets    prometheus.Counter
}

// NewMetrics registers the pool's counters and gauges with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		registry: reg,
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixpoint",
			Name:      "tasks_completed_total",
			Help:      "Task attempts that finished successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixpoint",
			Name:      "tasks_failed_total",
			Help:      "Task attempts that finished with an error.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixpoint",
			Name:      "task_retries_total",
			Help:      "Failed tasks re-enqueued for another attempt.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixpoint",
			Name:      "executor_resets_total",
			Help:      "Executors reset in place by the health monitor.",
		}),
	}
	reg.MustRegister(m.completed, m.failed, m.retries, m.resets)
	return m
}

// observePool registers gauges computed from live pool snapshots. Called
// once from New, after the executors exist.
func (m *Metrics) observePool(p *Pool) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fixpoint",
			Name:      "executors_active",
			Help:      "Executors currently running a task or failed.",
		}, func() float64 {
			return float64(p.Metrics().ActiveExecutors)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fixpoint",
			Name:      "executors_idle",
			Help:      "Executors free to accept a task.",
		}, func() float64 {
			return float64(p.Metrics().IdleExecutors)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fixpoint",
			Name:      "tasks_queued",
			Help:      "Tasks pending in the shared priority queue.",
		}, func() float64 {
			return float64(p.queue.Len())
		}),
	)
}
