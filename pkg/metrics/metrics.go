// Package metrics provides Prometheus metrics for the indexing service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DiscoveryRunsTotal tracks discovery orchestrator runs by outcome
	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Total number of discovery runs by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// DiscoveryDuration tracks discovery run duration in seconds
	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "indexing",
			Subsystem: "discovery",
			Name:      "duration_seconds",
			Help:      "Duration of discovery runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	// DiscoveryTransitionsTotal tracks mirror rows queued per transition
	DiscoveryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "discovery",
			Name:      "transitions_total",
			Help:      "Total number of mirror rows moved by each discovery transition",
		},
		[]string{"kind", "target_type", "transition"},
	)

	// SyncBatchesTotal tracks indexer batches by status
	SyncBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "sync",
			Name:      "batches_total",
			Help:      "Total number of sync batches by target type, action and status",
		},
		[]string{"target_type", "action", "status"},
	)

	// SyncRecordsTotal tracks records sent to the remote service
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of records synced by target type, action and outcome",
		},
		[]string{"target_type", "action", "outcome"},
	)

	// SyncRunsSkipped tracks sync runs skipped because another process holds the run lock
	SyncRunsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "sync",
			Name:      "runs_skipped_total",
			Help:      "Total number of sync runs skipped because their lock was held",
		},
		[]string{"target_type", "action"},
	)

	// SyncOrchestrationsTotal tracks completed sync orchestrations
	SyncOrchestrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "sync",
			Name:      "orchestrations_total",
			Help:      "Total number of completed sync orchestrations",
		},
		[]string{"kind"},
	)

	// HistoryRecordsConsolidated tracks history rows folded into consolidation rows
	HistoryRecordsConsolidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "history",
			Name:      "records_consolidated_total",
			Help:      "Total number of sync history rows consolidated",
		},
	)

	// HistoryConsolidationsDeleted tracks consolidation rows removed by retention
	HistoryConsolidationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "history",
			Name:      "consolidations_deleted_total",
			Help:      "Total number of consolidated history rows removed by retention",
		},
	)

	// HistoryFailuresTotal tracks failed history operations
	HistoryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "history",
			Name:      "failures_total",
			Help:      "Total number of failed history operations",
		},
		[]string{"operation"},
	)

	// NotificationsPublished tracks notification events by kind
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "notification",
			Name:      "published_total",
			Help:      "Total number of notification events published",
		},
		[]string{"event"},
	)

	// SchedulerJobsTotal tracks scheduled job runs
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Total number of scheduled job runs by job and status",
		},
		[]string{"job", "status"},
	)

	// HTTPRequestsTotal tracks admin API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "indexing",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of admin API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks admin API latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "indexing",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
