package points

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// PointEntry is one immutable line in a staff member's point history.
type PointEntry struct {
	ID              string
	StaffID         string
	StoreID         int
	Reason          ReasonCode
	Category        Category
	PointsChange    decimal.Decimal
	WeightHandledKg decimal.Decimal
	VarianceKg      decimal.Decimal
	ReferenceID     string
	Note            string
	CreatedAt       time.Time
}

// BuildPointEntryID derives the identity of an entry from its uniqueness
// triple, so replays collide instead of duplicating.
func BuildPointEntryID(staffID, referenceID string, reason ReasonCode) string {
	sum := sha256.Sum256([]byte(staffID + "|" + referenceID + "|" + string(reason)))
	return "pts-" + hex.EncodeToString(sum[:8])
}

// NewPointEntry builds an entry for a table-driven reason, computing the
// point delta from the reason spec.
func NewPointEntry(staffID string, storeID int, reason ReasonCode, referenceID string, weightKg, varianceKg decimal.Decimal, at time.Time) (PointEntry, error) {
	if staffID == "" {
		return PointEntry{}, ErrMissingStaff
	}
	if referenceID == "" {
		return PointEntry{}, ErrMissingRef
	}
	spec, ok := LookupReason(reason)
	if !ok {
		return PointEntry{}, ErrUnknownReason
	}
	change, err := ComputePoints(reason, varianceKg)
	if err != nil {
		return PointEntry{}, err
	}
	return PointEntry{
		ID:              BuildPointEntryID(staffID, referenceID, reason),
		StaffID:         staffID,
		StoreID:         storeID,
		Reason:          reason,
		Category:        spec.Category,
		PointsChange:    change,
		WeightHandledKg: weightKg.Round(3),
		VarianceKg:      varianceKg.Abs().Round(3),
		CreatedAt:       at.UTC(),
		ReferenceID:     referenceID,
	}, nil
}

// NewManualAdjustment builds an admin-entered entry with explicit points.
func NewManualAdjustment(staffID string, storeID int, pointsChange decimal.Decimal, referenceID, note string, at time.Time) (PointEntry, error) {
	if staffID == "" {
		return PointEntry{}, ErrMissingStaff
	}
	if referenceID == "" {
		return PointEntry{}, ErrMissingRef
	}
	if pointsChange.IsZero() {
		return PointEntry{}, ErrZeroAdjustment
	}
	return PointEntry{
		ID:           BuildPointEntryID(staffID, referenceID, ReasonManualAdjustment),
		StaffID:      staffID,
		StoreID:      storeID,
		Reason:       ReasonManualAdjustment,
		Category:     CategoryManual,
		PointsChange: pointsChange.Round(2),
		ReferenceID:  referenceID,
		Note:         note,
		CreatedAt:    at.UTC(),
	}, nil
}

// AutoSuspendSignal is raised when a balance crosses the suspension
// threshold. It is advisory, not an error.
type AutoSuspendSignal struct {
	StaffID    string
	StoreID    int
	Balance    decimal.Decimal
	Threshold  decimal.Decimal
	TriggerRef string
	RaisedAt   time.Time
}

// StaffSummary is the aggregate view of one staff member's points.
type StaffSummary struct {
	StaffID      string
	Balance      decimal.Decimal
	EntryCount   int
	FraudEntries int
	LastEntryAt  time.Time
}
