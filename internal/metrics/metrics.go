// Package metrics exposes Prometheus collectors for transcription jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for jobsTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Segment status labels.
const (
	SegmentSuccess = "success"
	SegmentError   = "error"
)

var (
	// Labels: outcome (completed/failed/rejected)
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytscribe_jobs_total",
			Help: "Total number of transcription jobs by outcome",
		},
		[]string{"outcome"},
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytscribe_job_duration_seconds",
			Help:    "End-to-end transcription job duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// Labels: status (success/error)
	segmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytscribe_segments_total",
			Help: "Total number of long-audio segments transcribed",
		},
		[]string{"status"},
	)

	// Labels: step (download/process/model/transcribe/save)
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytscribe_step_duration_seconds",
			Help:    "Duration of each job step in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"step"},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytscribe_active_jobs",
			Help: "Number of transcription jobs currently running",
		},
	)

	engineLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytscribe_engine_loaded",
			Help: "Transcription engine readiness (0=not loaded, 1=loaded)",
		},
	)
)

// JobStarted marks a job as running and returns a func to call when it ends.
func JobStarted() (done func(outcome string)) {
	start := time.Now()
	activeJobs.Inc()
	return func(outcome string) {
		activeJobs.Dec()
		jobsTotal.WithLabelValues(outcome).Inc()
		jobDuration.Observe(time.Since(start).Seconds())
	}
}

// JobRejected counts a job that failed validation before running.
func JobRejected() {
	jobsTotal.WithLabelValues(OutcomeRejected).Inc()
}

// RecordSegment counts one processed long-audio segment.
func RecordSegment(success bool) {
	status := SegmentSuccess
	if !success {
		status = SegmentError
	}
	segmentsTotal.WithLabelValues(status).Inc()
}

// RecordStep observes how long a step took.
func RecordStep(step string, d time.Duration) {
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// SetEngineLoaded flips the engine readiness gauge.
func SetEngineLoaded(loaded bool) {
	if loaded {
		engineLoaded.Set(1)
	} else {
		engineLoaded.Set(0)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
