// Package metrics provides Prometheus metrics for the drivescan service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivescan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivescan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Job metrics
	jobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivescan_jobs_submitted_total",
			Help: "Total scan jobs submitted",
		},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivescan_jobs_finished_total",
			Help: "Total scan jobs that reached a terminal state",
		},
		[]string{"status"},
	)

	jobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivescan_jobs_running",
			Help: "Number of scan jobs holding a concurrency slot",
		},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivescan_job_duration_seconds",
			Help:    "Scan job duration from submission to terminal state",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"status"},
	)

	entriesListedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivescan_entries_listed_total",
			Help: "Total files and folders exported by completed scans",
		},
	)

	// Event stream metrics
	eventStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivescan_event_streams_active",
			Help: "Number of open job event websockets",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric. route should be the
// matched route template, not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJobSubmitted counts a newly submitted job.
func RecordJobSubmitted() {
	jobsSubmittedTotal.Inc()
}

// JobStarted marks a job as holding a concurrency slot. The returned func
// releases it.
func JobStarted() func() {
	jobsRunning.Inc()
	return jobsRunning.Dec
}

// RecordJobFinished records a job reaching terminal status.
func RecordJobFinished(status string, duration time.Duration, entries int) {
	jobsFinishedTotal.WithLabelValues(status).Inc()
	jobDuration.WithLabelValues(status).Observe(duration.Seconds())

	if entries > 0 {
		entriesListedTotal.Add(float64(entries))
	}
}

// EventStreamOpened increments the open event stream gauge. The returned
// func decrements it.
func EventStreamOpened() func() {
	eventStreamsActive.Inc()
	return eventStreamsActive.Dec
}
