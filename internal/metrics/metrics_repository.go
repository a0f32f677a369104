package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repositoryInitFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitcon_repository_init_failed_total",
			Help: "Number of times a repository has failed to initialize",
		},
		[]string{"repository"},
	)

	repositoryInitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitcon_repository_init_duration_seconds",
			Help:    "Repository initialization duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"repository"},
	)

	repositoryRefreshFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitcon_repository_refresh_failed_total",
			Help: "Number of times a repository refresh has failed",
		},
		[]string{"repository"},
	)

	repositoryRefreshCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitcon_repository_refresh_count_total",
			Help: "Total number of repository refreshes",
		},
	)

	repositoryRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitcon_repository_refresh_duration_seconds",
			Help:    "Repository refresh duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"repository"},
	)

	lastRepositoryRefreshEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitcon_last_repository_refresh_end_timestamp",
			Help: "Unix timestamp of when the last repository refresh ended",
		},
		[]string{"repository"},
	)

	repositoryUpdateInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitcon_repository_update_interval_seconds",
			Help: "Configured update interval of a dynamic repository",
		},
		[]string{"repository"},
	)
)

func RepositoryInitFailed(repository string) {
	repositoryInitFailed.WithLabelValues(repository).Inc()
}

func RepositoryInitSucceeded(repository string, start time.Time) {
	repositoryInitDuration.WithLabelValues(repository).Observe(time.Since(start).Seconds())
}

func RepositoryRefreshFailed(repository string) {
	repositoryRefreshCount.Inc()
	repositoryRefreshFailed.WithLabelValues(repository).Inc()
	lastRepositoryRefreshEnd.WithLabelValues(repository).SetToCurrentTime()
}

func RepositoryRefreshSucceeded(repository string, start time.Time) {
	repositoryRefreshCount.Inc()
	repositoryRefreshDuration.WithLabelValues(repository).Observe(time.Since(start).Seconds())
	lastRepositoryRefreshEnd.WithLabelValues(repository).SetToCurrentTime()
}

func RepositoryUpdateInterval(repository string, interval time.Duration) {
	repositoryUpdateInterval.WithLabelValues(repository).Set(interval.Seconds())
}
