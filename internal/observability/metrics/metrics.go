// Package metrics exposes Prometheus metrics for job executions and
// retention sweeps.
//
// Metrics:
//   - inspection_job_transitions_total: emitted job records by job and state
//   - inspection_job_duration_seconds: run time of finished jobs
//   - inspection_retention_rows_deleted_total: rows removed per collection
//   - inspection_retention_sweeps_total: sweeps per collection and outcome
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"log-inspection/internal/inspection"
	"log-inspection/internal/retention"
	"log-inspection/internal/worker"
)

const namespace = "inspection"

// Collector holds every metric on its own registry.
type Collector struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rowsDeleted *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
}

// New registers the metrics on a fresh registry. Process and Go runtime
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Collector {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "transitions_total",
			Help:      "Job records emitted by the executor.",
		}, []string{"job", "state"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Run time of finished jobs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"job", "state"}),
		rowsDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "rows_deleted_total",
			Help:      "Log rows removed by retention sweeps.",
		}, []string{"collection"}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "sweeps_total",
			Help:      "Retention sweeps by outcome.",
		}, []string{"collection", "outcome"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Hooks returns executor hooks feeding the job metrics.
func (c *Collector) Hooks() worker.Hooks {
	return worker.Hooks{OnTransition: c.observeRecord}
}

func (c *Collector) observeRecord(_ context.Context, rec inspection.JobRecord) {
	state := string(rec.State)
	c.transitions.WithLabelValues(rec.JobName, state).Inc()
	if rec.Duration != nil && (rec.State == inspection.StateSucceeded || rec.State == inspection.StateFailed) {
		c.duration.WithLabelValues(rec.JobName, state).Observe(rec.Duration.Seconds())
	}
}

// ObserveSweep records the outcome of one sweep. It matches
// retention.SweepObserver.
func (c *Collector) ObserveSweep(p retention.Policy, res retention.Result, err error) {
	col := string(p.Collection)
	// partial sweeps still removed rows
	c.rowsDeleted.WithLabelValues(col).Add(float64(res.Deleted))

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.sweeps.WithLabelValues(col, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
