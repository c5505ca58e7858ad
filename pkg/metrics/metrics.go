// Package metrics 观察活动的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observation_signups_total",
			Help: "Timeslot signups by outcome and source",
		},
		[]string{"source", "outcome"}, // source: self|random, outcome: ok|slot_taken|already_registered
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observation_sessions_total",
			Help: "Session state transitions",
		},
		[]string{"state"},
	)

	GradeRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "observation_grade_ratio",
			Help:    "Distribution of total/max for finished sessions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	GradebookSyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "observation_gradebook_sync_failures_total",
			Help: "Failed gradebook sync attempts",
		},
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observation_reminders_sent_total",
			Help: "Reminders processed by the notification job",
		},
		[]string{"outcome"}, // ok|failed
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "observation_job_duration_seconds",
			Help:    "Periodic job run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observation_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)
)

// Handler /metrics 端点
func Handler() http.Handler {
	return promhttp.Handler()
}
