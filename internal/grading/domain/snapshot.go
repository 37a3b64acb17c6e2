package grading

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot is the stored monthly grading outcome of one staff
// member. While unlocked it may be regenerated; a locked snapshot is final.
type PerformanceSnapshot struct {
	ID                 string
	StaffID            string
	Month              time.Time
	TotalPoints        decimal.Decimal
	WeightHandledKg    decimal.Decimal
	PositiveVarianceKg decimal.Decimal
	NegativeVarianceKg decimal.Decimal
	ZeroVarianceDays   int
	Score              decimal.Decimal
	Grade              Grade
	BonusAmount        decimal.Decimal
	PenaltyAmount      decimal.Decimal
	NetIncentive       decimal.Decimal
	ConfigVersion      int
	Locked             bool
	GeneratedAt        time.Time
	LockedAt           time.Time
}

// BuildSnapshotID derives the deterministic identity for a staff month.
func BuildSnapshotID(staffID string, month time.Time) string {
	base := staffID + "|" + month.UTC().Format("200601")
	sum := sha256.Sum256([]byte(base))
	return "perf-" + hex.EncodeToString(sum[:8])
}

// MonthStart truncates t to the first day of its UTC month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
