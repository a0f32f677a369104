package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gitSyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitcon_git_sync_failed_total",
			Help: "Total number of failed Git sync operations",
		},
		[]string{"source"},
	)

	gitSyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitcon_git_sync_count_total",
			Help: "Total number of Git sync operations",
		},
	)

	gitSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitcon_git_sync_duration_seconds",
			Help:    "Git sync duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"source", "repo"},
	)

	lastGitSyncEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitcon_last_git_sync_end_timestamp",
			Help: "Unix timestamp of when the last git sync ended",
		},
		[]string{"source", "repo"},
	)
)

func GitSyncFailed(source, repo string) {
	gitSyncCount.Inc()
	gitSyncFailed.WithLabelValues(source).Inc()
	lastGitSyncEnd.WithLabelValues(source, repo).SetToCurrentTime()
}

func GitSyncSucceeded(source, repo string, start time.Time) {
	gitSyncCount.Inc()
	gitSyncDuration.WithLabelValues(source, repo).Observe(time.Since(start).Seconds())
	lastGitSyncEnd.WithLabelValues(source, repo).SetToCurrentTime()
}
