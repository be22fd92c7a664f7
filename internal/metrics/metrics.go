// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts find-song submissions by result:
	// cache_hit, queued or invalid_url.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsong_submissions_total",
			Help: "Total number of song identification submissions",
		},
		[]string{"result"},
	)

	// PipelineRunsTotal counts pipeline run outcomes:
	// matched, no_match, retried or failed.
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsong_pipeline_runs_total",
			Help: "Total number of identification pipeline run outcomes",
		},
		[]string{"outcome"},
	)

	// PipelineErrorsTotal counts classified pipeline failures by error kind.
	PipelineErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelsong_pipeline_errors_total",
			Help: "Total number of classified pipeline errors",
		},
		[]string{"kind"},
	)

	// ExtractionAttemptsTotal counts individual metadata probe attempts,
	// including internal retries.
	ExtractionAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelsong_extraction_attempts_total",
			Help: "Total number of audio extraction probe attempts",
		},
	)

	// RecognitionRequestSeconds tracks recognition API request latency.
	RecognitionRequestSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelsong_recognition_request_seconds",
			Help:    "Recognition API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
