// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapedit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 900},
		},
		[]string{"method", "route"},
	)
)

// Conversion metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedit_jobs_total",
			Help: "Total number of conversion jobs by outcome",
		},
		[]string{"outcome"}, // "complete", "engine_failed", "spawn_failed", "rejected"
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedit_jobs_in_progress",
			Help: "Number of engine runs currently executing",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapedit_job_duration_seconds",
			Help:    "Engine run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapedit_deliveries_total",
			Help: "Total number of artifact deliveries by status",
		},
		[]string{"status"}, // "complete", "incomplete"
	)
)

// Temp storage metrics
var (
	ReaperFilesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapedit_reaper_files_removed_total",
			Help: "Total number of stale temp files removed by the periodic sweep",
		},
	)

	ReaperErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapedit_reaper_errors_total",
			Help: "Total number of per-file errors encountered by the periodic sweep",
		},
	)

	TempDiskFreeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tapedit_temp_disk_free_bytes",
			Help: "Free space on the filesystem holding the temp directory, as of the last sweep",
		},
	)
)

// AppInfo exposes the running version as a constant gauge.
var AppInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "tapedit_app_info",
		Help: "Application information",
	},
	[]string{"version", "go_version"},
)
