package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementReport is the signed movement of one stock key over one day.
// Debit buckets hold positive magnitudes; Adjustments is a signed net.
type MovementReport struct {
	Key           StockKey        `json:"key"`
	Date          time.Time       `json:"date"`
	Opening       decimal.Decimal `json:"opening"`
	Purchases     decimal.Decimal `json:"purchases"`
	ProcessingIn  decimal.Decimal `json:"processing_in"`
	ProcessingOut decimal.Decimal `json:"processing_out"`
	Sales         decimal.Decimal `json:"sales"`
	TransfersIn   decimal.Decimal `json:"transfers_in"`
	TransfersOut  decimal.Decimal `json:"transfers_out"`
	Wastage       decimal.Decimal `json:"wastage"`
	Adjustments   decimal.Decimal `json:"adjustments"`
	Closing       decimal.Decimal `json:"closing"`
}

// Accumulate folds one ledger entry into the report buckets.
func (r *MovementReport) Accumulate(entry LedgerEntry) {
	spec, ok := LookupReason(entry.ReasonCode)
	if !ok {
		return
	}
	switch spec.Category {
	case CategoryPurchase:
		r.Purchases = r.Purchases.Add(entry.QuantityKg)
	case CategoryProcessingIn:
		r.ProcessingIn = r.ProcessingIn.Add(entry.QuantityKg)
	case CategoryProcessingOut:
		r.ProcessingOut = r.ProcessingOut.Add(entry.QuantityKg.Neg())
	case CategorySale:
		r.Sales = r.Sales.Add(entry.QuantityKg.Neg())
	case CategoryTransferIn:
		r.TransfersIn = r.TransfersIn.Add(entry.QuantityKg)
	case CategoryTransferOut:
		r.TransfersOut = r.TransfersOut.Add(entry.QuantityKg.Neg())
	case CategoryWastage:
		r.Wastage = r.Wastage.Add(entry.QuantityKg.Neg())
	case CategoryAdjustment:
		r.Adjustments = r.Adjustments.Add(entry.QuantityKg)
	}
}

// NetMovement returns the signed sum of all buckets. The movement identity
// Closing - Opening == NetMovement holds for every committed day.
func (r MovementReport) NetMovement() decimal.Decimal {
	return r.Purchases.
		Add(r.ProcessingIn).
		Sub(r.ProcessingOut).
		Sub(r.Sales).
		Add(r.TransfersIn).
		Sub(r.TransfersOut).
		Sub(r.Wastage).
		Add(r.Adjustments)
}

// Balanced reports whether the movement identity holds.
func (r MovementReport) Balanced() bool {
	return r.Closing.Sub(r.Opening).Equal(r.NetMovement())
}
