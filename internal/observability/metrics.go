// Package observability exposes the research engine's operational
// counters and gauges to Prometheus. It has no opinion on the domain —
// callers feed it trial/window completions and worker-pool snapshots as
// they happen.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the engine reports, plus the
// registry they were registered against.
type Metrics struct {
	registry *prometheus.Registry

	TrialsCompletedTotal *prometheus.CounterVec
	TrialsPrunedTotal    *prometheus.CounterVec
	TrialsFailedTotal    *prometheus.CounterVec
	TrialDuration        *prometheus.HistogramVec

	WFAWindowsCompletedTotal *prometheus.CounterVec
	WFATriggerFiredTotal     *prometheus.CounterVec

	StudiesSubmittedTotal *prometheus.CounterVec
	StudiesFailedTotal    *prometheus.CounterVec

	WorkerPoolUtilization *prometheus.GaugeVec
	WorkerPoolQueueDepth  *prometheus.GaugeVec

	StorageWriteDuration *prometheus.HistogramVec
}

// New registers and returns the full metric set, against a fresh
// registry that also carries the standard process/Go collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())
	return newForTest(reg)
}

func newForTest(reg *prometheus.Registry) *Metrics {
	namespace := "barforge"
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TrialsCompletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_completed_total",
				Help:      "Total number of optimization trials completed.",
			},
			[]string{"strategy"},
		),
		TrialsPrunedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_pruned_total",
				Help:      "Total number of optimization trials pruned before completion.",
			},
			[]string{"strategy"},
		),
		TrialsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trials_failed_total",
				Help:      "Total number of optimization trials that errored.",
			},
			[]string{"strategy"},
		),
		TrialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trial_duration_seconds",
				Help:      "Wall-clock duration of one trial evaluation.",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"strategy"},
		),

		WFAWindowsCompletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wfa_windows_completed_total",
				Help:      "Total number of walk-forward windows completed.",
			},
			[]string{"strategy"},
		),
		WFATriggerFiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wfa_trigger_fired_total",
				Help:      "Total number of adaptive walk-forward triggers fired, by trigger name.",
			},
			[]string{"strategy", "trigger"},
		),

		StudiesSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "studies_submitted_total",
				Help:      "Total number of studies submitted through the API.",
			},
			[]string{"mode"},
		),
		StudiesFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "studies_failed_total",
				Help:      "Total number of studies that ended in a failed state.",
			},
			[]string{"mode"},
		),

		WorkerPoolUtilization: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_utilization_ratio",
				Help:      "Fraction of a pool's workers currently busy evaluating a trial.",
			},
			[]string{"pool"},
		),
		WorkerPoolQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_queue_depth",
				Help:      "Number of trials queued but not yet dispatched to a worker.",
			},
			[]string{"pool"},
		),

		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "storage_write_duration_seconds",
				Help:      "Duration of a study/trial/window persistence write.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}
}

// Handler returns the HTTP handler to mount at /metrics, scoped to this
// Metrics instance's own registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoolStats records one worker-pool snapshot's utilization and
// queue depth under the given pool label.
func (m *Metrics) ObservePoolStats(pool string, activeWorkers, totalWorkers, queueDepth int) {
	if totalWorkers <= 0 {
		return
	}
	m.WorkerPoolUtilization.WithLabelValues(pool).Set(float64(activeWorkers) / float64(totalWorkers))
	m.WorkerPoolQueueDepth.WithLabelValues(pool).Set(float64(queueDepth))
}
