package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lastSyncTimestamp is a Gauge that captures the timestamp of the last
	// successful mirror sync
	lastSyncTimestamp *prometheus.GaugeVec
	// syncCount is a Counter vector of reconcile outcomes
	syncCount *prometheus.CounterVec
	// syncLatency is a Histogram vector that keeps track of per repo
	// reconcile durations
	syncLatency *prometheus.HistogramVec
)

// EnableMetrics will enable metrics collection for mirror syncs.
// Available metrics are...
//   - git_last_sync_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful sync per repo.
//   - git_sync_count - (tags: repo,outcome)
//     A Counter for each repo sync, incremented with each reconcile attempt
//     and tagged with the outcome (cloned|fetched|url-updated+fetched|failed)
//   - git_sync_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the reconcile latency per repo.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastSyncTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_last_sync_timestamp",
		Help:      "Timestamp of the last successful mirror sync",
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	syncCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_sync_count",
		Help:      "Count of mirror reconcile operations",
	},
		[]string{
			// name of the repository
			"repo",
			// reconcile outcome
			"outcome",
		},
	)

	syncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_sync_latency_seconds",
		Help:      "Latency for mirror reconcile",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	registerer.MustRegister(
		lastSyncTimestamp,
		syncCount,
		syncLatency,
	)
}

// recordSync records a reconcile attempt by updating all the relevant
// metrics
func recordSync(repo string, outcome Outcome) {
	// if metrics not enabled return
	if lastSyncTimestamp == nil || syncCount == nil {
		return
	}
	switch outcome {
	case OutcomeCloned, OutcomeFetched, OutcomeURLUpdatedFetched:
		lastSyncTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	syncCount.With(prometheus.Labels{
		"repo":    repo,
		"outcome": string(outcome),
	}).Inc()
}

func updateSyncLatency(repo string, start time.Time) {
	// if metrics not enabled return
	if syncLatency == nil {
		return
	}
	syncLatency.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}
