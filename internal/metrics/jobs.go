// Package metrics holds the Prometheus collectors shared by the worker and the status API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// job outcomes
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeRequeued  = "requeued"
	OutcomeRejected  = "rejected"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_jobs_total",
		Help: "Total number of processed job deliveries by kind and outcome",
	}, []string{"kind", "outcome"})

	jobsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "media_jobs_in_flight",
		Help: "Jobs currently being processed by kind",
	}, []string{"kind"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_job_duration_seconds",
		Help:    "Wall time from claim to terminal status",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	}, []string{"kind", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_job_stage_duration_seconds",
		Help:    "Time spent in each job status",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"kind", "stage"})
)

// RecordJobOutcome counts one finished delivery
func RecordJobOutcome(kind, outcome string) {
	jobsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveJobDuration records the time a job took to reach a terminal status
func ObserveJobDuration(kind, outcome string, d time.Duration) {
	jobDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// ObserveStage records the time spent in one status
func ObserveStage(kind, stage string, d time.Duration) {
	stageDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
}

// JobStarted increments the in-flight gauge and returns its decrement
func JobStarted(kind string) func() {
	g := jobsInFlight.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}
