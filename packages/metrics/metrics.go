// Package metrics
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PostsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commentbot_posts_scanned_total",
			Help: "Total number of candidate posts pulled from the feed.",
		},
	)
	PostsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentbot_posts_skipped_total",
			Help: "Total number of candidate posts skipped, labeled by reason.",
		},
		[]string{"reason"},
	)
	CommentsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentbot_comments_generated_total",
			Help: "Total number of comments drafted, labeled by category.",
		},
		[]string{"category"},
	)
	TasksPosted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commentbot_tasks_posted_total",
			Help: "Total number of posting tasks that reached POSTED.",
		},
	)
	TasksFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commentbot_tasks_failed_total",
			Help: "Total number of posting tasks that reached FAILED, labeled by fault kind.",
		},
		[]string{"kind"},
	)
	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commentbot_task_duration_seconds",
			Help:    "Duration of posting tasks in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "commentbot_posting_queue_depth",
			Help: "Current number of tasks waiting in the posting queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(PostsScanned)
	prometheus.MustRegister(PostsSkipped)
	prometheus.MustRegister(CommentsGenerated)
	prometheus.MustRegister(TasksPosted)
	prometheus.MustRegister(TasksFailed)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(QueueDepth)
}

func ExposeMetrics(addr string) {
	slog.Info("Exposing Prometheus metrics", "address", addr)
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Failed to start Prometheus metrics server", "error", err)
	}
}
