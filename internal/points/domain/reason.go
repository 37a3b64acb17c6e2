package points

import "github.com/shopspring/decimal"

// Category groups reason codes for reporting and for the fraud counters.
type Category string

const (
	CategoryVariance   Category = "VARIANCE"
	CategoryDiscipline Category = "DISCIPLINE"
	CategoryFraud      Category = "FRAUD"
	CategoryManual     Category = "MANUAL"
)

// ReasonCode identifies why points were awarded or deducted.
type ReasonCode string

const (
	ReasonZeroVariance        ReasonCode = "ZERO_VARIANCE"
	ReasonPositiveVariance    ReasonCode = "POSITIVE_VARIANCE"
	ReasonNegativeVariance    ReasonCode = "NEGATIVE_VARIANCE"
	ReasonConsecutiveNegative ReasonCode = "CONSECUTIVE_NEGATIVE"
	ReasonMissedSettlement    ReasonCode = "MISSED_SETTLEMENT"
	ReasonInventoryTampering  ReasonCode = "INVENTORY_TAMPERING"
	ReasonManualAdjustment    ReasonCode = "MANUAL_ADJUSTMENT"
)

// ReasonSpec fixes the semantics of a reason code. FlatPoints applies once;
// PerKgRate multiplies the variance magnitude instead when non-zero. Manual
// entries carry caller-supplied points.
type ReasonSpec struct {
	Description string
	Category    Category
	FlatPoints  decimal.Decimal
	PerKgRate   decimal.Decimal
	Manual      bool
}

var reasonSpecs = map[ReasonCode]ReasonSpec{
	ReasonZeroVariance: {
		Description: "settlement closed with zero variance on every item",
		Category:    CategoryVariance,
		FlatPoints:  decimal.NewFromInt(10),
	},
	ReasonPositiveVariance: {
		Description: "surplus stock confirmed at approval",
		Category:    CategoryVariance,
		FlatPoints:  decimal.NewFromInt(5),
	},
	ReasonNegativeVariance: {
		Description: "stock shortage deducted at settlement",
		Category:    CategoryVariance,
		PerKgRate:   decimal.NewFromInt(-8),
	},
	ReasonConsecutiveNegative: {
		Description: "third consecutive day with a stock shortage",
		Category:    CategoryDiscipline,
		FlatPoints:  decimal.NewFromInt(-25),
	},
	ReasonMissedSettlement: {
		Description: "daily settlement not submitted in time",
		Category:    CategoryDiscipline,
		FlatPoints:  decimal.NewFromInt(-50),
	},
	ReasonInventoryTampering: {
		Description: "ledger tampering confirmed by audit",
		Category:    CategoryFraud,
		FlatPoints:  decimal.NewFromInt(-100),
	},
	ReasonManualAdjustment: {
		Description: "manual adjustment by an administrator",
		Category:    CategoryManual,
		Manual:      true,
	},
}

// LookupReason returns the spec for a reason code.
func LookupReason(code ReasonCode) (ReasonSpec, bool) {
	spec, ok := reasonSpecs[code]
	return spec, ok
}

// ComputePoints resolves the point delta for a reason. varianceKg is the
// absolute variance magnitude and only matters for per-kg reasons.
func ComputePoints(code ReasonCode, varianceKg decimal.Decimal) (decimal.Decimal, error) {
	spec, ok := reasonSpecs[code]
	if !ok {
		return decimal.Zero, ErrUnknownReason
	}
	if spec.Manual {
		return decimal.Zero, ErrManualPoints
	}
	if !spec.PerKgRate.IsZero() {
		return spec.PerKgRate.Mul(varianceKg.Abs()).Round(2), nil
	}
	return spec.FlatPoints, nil
}

// ReasonCodes returns every known reason code.
func ReasonCodes() []ReasonCode {
	codes := make([]ReasonCode, 0, len(reasonSpecs))
	for code := range reasonSpecs {
		codes = append(codes, code)
	}
	return codes
}
