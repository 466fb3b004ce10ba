package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncSuccess counts completed remote writes, by entity type and action
	// (create/update/link)
	SyncSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_records_success_total",
		Help: "Total number of records synchronized successfully",
	}, []string{"entity_type", "action"})

	// SyncFailed counts records whose sync ended in an error result
	SyncFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_records_failed_total",
		Help: "Total number of records whose synchronization failed",
	}, []string{"entity_type"})

	// SyncSkipped counts policy skips (locked, zero total, refund-classified)
	SyncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_records_skipped_total",
		Help: "Total number of records skipped by sync policy",
	}, []string{"entity_type"})

	// BatchDuration measures wall time per entity-type batch
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qbsync_batch_duration_seconds",
		Help:    "Duration of one entity-type sync batch in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity_type"})

	// RunsActive is 1 while a batch run executes, 0 when idle
	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qbsync_runs_active",
		Help: "Number of sync runs currently executing",
	})
)
