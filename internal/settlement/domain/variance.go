package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
)

// VarianceType classifies the sign of a stock variance.
type VarianceType string

const (
	VarianceZero     VarianceType = "ZERO"
	VariancePositive VarianceType = "POSITIVE"
	VarianceNegative VarianceType = "NEGATIVE"
)

// ClassifyVariance maps a signed variance to its type.
func ClassifyVariance(varianceKg decimal.Decimal) VarianceType {
	switch varianceKg.Sign() {
	case 1:
		return VariancePositive
	case -1:
		return VarianceNegative
	default:
		return VarianceZero
	}
}

// ResolutionStatus tracks variance record resolution.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "PENDING"
	ResolutionApproved ResolutionStatus = "APPROVED"
	ResolutionDeducted ResolutionStatus = "DEDUCTED"
)

// VarianceRecord is derived from a settlement at submission and immutable
// once resolved. VarianceKg carries the absolute magnitude; the sign lives
// in VarianceType.
type VarianceRecord struct {
	ID            string
	SettlementID  string
	StoreID       int
	BirdType      inventory.BirdType
	InventoryType inventory.InventoryType
	VarianceType  VarianceType
	ExpectedKg    decimal.Decimal
	DeclaredKg    decimal.Decimal
	VarianceKg    decimal.Decimal
	Status        ResolutionStatus
	ResolvedBy    string
	ResolvedAt    time.Time
	LedgerEntryID string
	CreatedAt     time.Time
}

// BuildVarianceRecordID derives a deterministic id per settlement item.
func BuildVarianceRecordID(settlementID string, bird inventory.BirdType, inv inventory.InventoryType) string {
	sum := sha256.Sum256([]byte(settlementID + "|" + string(bird) + "|" + string(inv)))
	return "var-" + hex.EncodeToString(sum[:8])
}

// NewVarianceRecords derives records for every non-zero variance item of a
// submitted settlement. Negative variances start DEDUCTED, positive PENDING.
func NewVarianceRecords(s *Settlement, at time.Time) []VarianceRecord {
	var out []VarianceRecord
	for _, item := range s.Items {
		if item.VarianceType == VarianceZero {
			continue
		}
		record := VarianceRecord{
			ID:            BuildVarianceRecordID(s.ID, item.BirdType, item.InventoryType),
			SettlementID:  s.ID,
			StoreID:       s.StoreID,
			BirdType:      item.BirdType,
			InventoryType: item.InventoryType,
			VarianceType:  item.VarianceType,
			ExpectedKg:    item.ExpectedKg,
			DeclaredKg:    item.DeclaredKg,
			VarianceKg:    item.VarianceKg.Abs(),
			Status:        ResolutionPending,
			CreatedAt:     at.UTC(),
		}
		if item.VarianceType == VarianceNegative {
			record.Status = ResolutionDeducted
			record.ResolvedBy = s.SubmittedBy
			record.ResolvedAt = at.UTC()
		}
		out = append(out, record)
	}
	return out
}
