package inventory

// Direction marks whether a reason code adds or removes stock.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// MovementCategory buckets a reason code for the daily movement report.
type MovementCategory string

const (
	CategoryPurchase      MovementCategory = "PURCHASE"
	CategoryProcessingIn  MovementCategory = "PROCESSING_IN"
	CategoryProcessingOut MovementCategory = "PROCESSING_OUT"
	CategorySale          MovementCategory = "SALE"
	CategoryTransferIn    MovementCategory = "TRANSFER_IN"
	CategoryTransferOut   MovementCategory = "TRANSFER_OUT"
	CategoryWastage       MovementCategory = "WASTAGE"
	CategoryAdjustment    MovementCategory = "ADJUSTMENT"
)

// ReasonCode tags why a ledger delta occurred.
type ReasonCode string

const (
	ReasonPurchaseReceived ReasonCode = "PURCHASE_RECEIVED"
	ReasonProcessingDebit  ReasonCode = "PROCESSING_DEBIT"
	ReasonProcessingCredit ReasonCode = "PROCESSING_CREDIT"
	ReasonSaleDebit        ReasonCode = "SALE_DEBIT"
	ReasonTransferIn       ReasonCode = "TRANSFER_IN"
	ReasonTransferOut      ReasonCode = "TRANSFER_OUT"
	ReasonWastage          ReasonCode = "WASTAGE"
	ReasonVariancePositive ReasonCode = "VARIANCE_POSITIVE"
	ReasonVarianceNegative ReasonCode = "VARIANCE_NEGATIVE"
	ReasonAdjustmentCredit ReasonCode = "ADJUSTMENT_CREDIT"
	ReasonAdjustmentDebit  ReasonCode = "ADJUSTMENT_DEBIT"
	ReasonOpeningBalance   ReasonCode = "OPENING_BALANCE"
)

// ReasonSpec describes the fixed behavior of a reason code.
type ReasonSpec struct {
	Description string
	Direction   Direction
	Category    MovementCategory
	RequiresRef bool
}

var reasonSpecs = map[ReasonCode]ReasonSpec{
	ReasonPurchaseReceived: {"Live birds received from supplier", DirectionCredit, CategoryPurchase, true},
	ReasonProcessingDebit:  {"Live birds consumed in processing", DirectionDebit, CategoryProcessingOut, true},
	ReasonProcessingCredit: {"Processed inventory created", DirectionCredit, CategoryProcessingIn, true},
	ReasonSaleDebit:        {"Inventory sold to customer", DirectionDebit, CategorySale, true},
	ReasonTransferIn:       {"Stock received from another store", DirectionCredit, CategoryTransferIn, true},
	ReasonTransferOut:      {"Stock sent to another store", DirectionDebit, CategoryTransferOut, true},
	ReasonWastage:          {"Processing wastage (non-sellable)", DirectionDebit, CategoryWastage, true},
	ReasonVariancePositive: {"Found stock (approved)", DirectionCredit, CategoryAdjustment, true},
	ReasonVarianceNegative: {"Lost stock (deducted)", DirectionDebit, CategoryAdjustment, true},
	ReasonAdjustmentCredit: {"Manual admin adjustment (increase)", DirectionCredit, CategoryAdjustment, false},
	ReasonAdjustmentDebit:  {"Manual admin adjustment (decrease)", DirectionDebit, CategoryAdjustment, false},
	ReasonOpeningBalance:   {"Opening stock balance", DirectionCredit, CategoryAdjustment, false},
}

// LookupReason returns the spec for a reason code.
func LookupReason(code ReasonCode) (ReasonSpec, bool) {
	spec, ok := reasonSpecs[code]
	return spec, ok
}

// ReasonCodes returns all known reason codes.
func ReasonCodes() []ReasonCode {
	codes := make([]ReasonCode, 0, len(reasonSpecs))
	for code := range reasonSpecs {
		codes = append(codes, code)
	}
	return codes
}
