package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "poultry_core_"

// Result labels for operation outcomes.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	guardCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "guard_commit_duration_seconds",
			Help:    "Stock transaction guard commit duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "result"},
	)
	guardRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "guard_rejections_total",
			Help: "Batches rejected before commit",
		},
		[]string{"reason"},
	)
	guardReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "guard_idempotent_replays_total",
			Help: "Commits answered from the idempotency log",
		},
	)
	balanceQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "balance_query_duration_seconds",
			Help:    "Balance and movement report query duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)
	settlementTransitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "settlement_transition_duration_seconds",
			Help:    "Settlement state transition duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action", "result"},
	)
	settlementConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "settlement_version_conflicts_total",
			Help: "Optimistic concurrency failures on settlements",
		},
	)
	pointsRecordDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "points_record_duration_seconds",
			Help:    "Staff point entry record duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	autoSuspendSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "auto_suspend_signals_total",
			Help: "Auto-suspend threshold signals raised",
		},
	)
	gradingGenerateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "grading_generate_duration_seconds",
			Help:    "Monthly performance generation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	exportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "export_duration_seconds",
			Help:    "Report export duration by format",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		guardCommitDuration,
		guardRejections,
		guardReplays,
		balanceQueryDuration,
		settlementTransitionDuration,
		settlementConflicts,
		pointsRecordDuration,
		autoSuspendSignals,
		gradingGenerateDuration,
		exportDuration,
	)
}

// ObserveGuardCommit records a guard commit outcome.
func ObserveGuardCommit(kind, result string, elapsed time.Duration) {
	guardCommitDuration.WithLabelValues(kind, result).Observe(elapsed.Seconds())
}

// IncGuardRejection counts a pre-commit rejection by cause.
func IncGuardRejection(reason string) {
	guardRejections.WithLabelValues(reason).Inc()
}

// IncGuardReplay counts an idempotency-log replay.
func IncGuardReplay() {
	guardReplays.Inc()
}

// ObserveBalanceQuery records a read-side query outcome.
func ObserveBalanceQuery(operation, result string, elapsed time.Duration) {
	balanceQueryDuration.WithLabelValues(operation, result).Observe(elapsed.Seconds())
}

// ObserveSettlementTransition records a settlement action outcome.
func ObserveSettlementTransition(action, result string, elapsed time.Duration) {
	settlementTransitionDuration.WithLabelValues(action, result).Observe(elapsed.Seconds())
}

// IncSettlementConflict counts a version CAS failure.
func IncSettlementConflict() {
	settlementConflicts.Inc()
}

// ObservePointsRecord records a point entry outcome.
func ObservePointsRecord(result string, elapsed time.Duration) {
	pointsRecordDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// IncAutoSuspendSignal counts a raised suspension signal.
func IncAutoSuspendSignal() {
	autoSuspendSignals.Inc()
}

// ObserveGradingGenerate records a snapshot generation outcome.
func ObserveGradingGenerate(result string, elapsed time.Duration) {
	gradingGenerateDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// ObserveExport records a report export outcome.
func ObserveExport(format, result string, elapsed time.Duration) {
	exportDuration.WithLabelValues(format, result).Observe(elapsed.Seconds())
}
