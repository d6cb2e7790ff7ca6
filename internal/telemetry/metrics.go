package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_submitted_total", Help: "Jobs accepted by the runner"}, []string{"kind"})
	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs that finished successfully"}, []string{"kind"})
	JobsFailed    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that ended in the failed state"}, []string{"kind"})
	JobsRejected  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_rejected_total", Help: "Jobs failed before start because the runner was full or stopped"}, []string{"kind", "reason"})
	InFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_inflight", Help: "Jobs currently executing"})
	QueueDepth    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "jobs_queue_depth", Help: "Jobs waiting for a free worker"})
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Wall time per pipeline stage",
		Buckets: []float64{.01, .1, .5, 1, 2, 5, 10, 20, 60},
	}, []string{"stage", "outcome"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "http_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsCompleted,
			JobsFailed,
			JobsRejected,
			InFlightGauge,
			QueueDepth,
			StageDuration,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
