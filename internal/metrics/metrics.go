// Package metrics provides Prometheus metrics for monitoring insight
// computation and the background job system.
package metrics

import (
	"time"

	"github.com/kinloop/kinloop/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InsightsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_insights_computed_total",
			Help: "Total number of insights computed, by matched rule",
		},
		[]string{"rule"},
	)
	InsightComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kinloop_insight_compute_duration_seconds",
			Help:    "Duration of the metrics aggregation and insight synthesis pipeline",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
	SanitizerLeaks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinloop_sanitizer_leaks_total",
			Help: "Generated texts that still carried identifier patterns after sanitization",
		},
	)
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_jobs_enqueued_total",
			Help: "Total number of background jobs enqueued",
		},
		[]string{"type", "priority"},
	)
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_jobs_completed_total",
			Help: "Total number of background jobs completed successfully",
		},
		[]string{"type"},
	)
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_jobs_failed_total",
			Help: "Total number of background jobs that failed",
		},
		[]string{"type"},
	)
	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_jobs_retried_total",
			Help: "Total number of background job retries",
		},
		[]string{"type"},
	)
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kinloop_job_duration_seconds",
			Help:    "Background job execution duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type", "status"},
	)
	JobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kinloop_jobs_in_queue",
			Help: "Current number of jobs by status and type",
		},
		[]string{"status", "type"},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kinloop_queue_depth",
			Help: "Current depth of the background job queue",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinloop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kinloop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordInsightComputed(rule string, duration time.Duration) {
	InsightsComputed.WithLabelValues(rule).Inc()
	InsightComputeDuration.Observe(duration.Seconds())
}

func RecordSanitizerLeak() {
	SanitizerLeaks.Inc()
}

func RecordJobEnqueued(jobType string, priority queue.JobPriority) {
	JobsEnqueued.WithLabelValues(jobType, priority.String()).Inc()
}

func RecordJobCompleted(jobType string, duration time.Duration) {
	JobsCompleted.WithLabelValues(jobType).Inc()
	JobDuration.WithLabelValues(jobType, "completed").Observe(duration.Seconds())
}

func RecordJobFailed(jobType string, duration time.Duration) {
	JobsFailed.WithLabelValues(jobType).Inc()
	JobDuration.WithLabelValues(jobType, "failed").Observe(duration.Seconds())
}

func RecordJobRetried(jobType string) {
	JobsRetried.WithLabelValues(jobType).Inc()
}

func UpdateJobGauges(jobsByStatus map[queue.JobStatus]map[string]int) {
	JobsInQueue.Reset()
	for status, typeMap := range jobsByStatus {
		for jobType, count := range typeMap {
			JobsInQueue.WithLabelValues(string(status), jobType).Set(float64(count))
		}
	}
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
