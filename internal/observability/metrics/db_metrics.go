package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterDBMetrics registers gauges backed by live database counts.
func RegisterDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "variance_pending",
			Help: "Variance records awaiting resolution",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM variance_logs WHERE status = 'PENDING'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "settlements_draft",
			Help: "Settlements still in draft",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM settlements WHERE status = 'DRAFT'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "performance_unlocked",
			Help: "Monthly performance snapshots not yet locked",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM staff_monthly_performance WHERE locked = FALSE")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
