package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh pipeline metrics
var (
	// RefreshRuns tracks completed refresh runs by outcome
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_refresh_runs_total",
			Help: "Total refresh runs by status",
		},
		[]string{"status"},
	)

	// FederationRefreshes tracks per-federation refresh outcomes
	FederationRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_federation_refreshes_total",
			Help: "Per-federation refresh outcomes (ok, unchanged, skipped, error)",
		},
		[]string{"federation", "status"},
	)

	// MetadataFetches tracks metadata document fetches by result class
	MetadataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_metadata_fetches_total",
			Help: "Metadata fetches by result (ok, transient, rejected, no_source)",
		},
		[]string{"result"},
	)

	// ParseDuration tracks full-document streaming parse latency
	ParseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "fedmet_parse_duration_ms",
			Help:                            "Metadata document parse duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"pass"},
	)

	// EntitiesReconciled tracks reconciliation deltas per federation
	EntitiesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_entities_reconciled_total",
			Help: "Entities removed/updated during reconciliation",
		},
		[]string{"federation", "change"},
	)

	// NotificationsSent tracks error notification dispatches
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_notifications_total",
			Help: "Error notifications by delivery status",
		},
		[]string{"status"},
	)
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "fedmet_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedmet_db_errors_total",
			Help: "Database errors by repository, operation, and error class",
		},
		[]string{"repo", "operation", "error"},
	)
)
