package inventory

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies the business operation that owns a batch.
type TransactionKind string

const (
	KindSale       TransactionKind = "SALE"
	KindPurchase   TransactionKind = "PURCHASE"
	KindProcessing TransactionKind = "PROCESSING"
	KindTransfer   TransactionKind = "TRANSFER"
	KindAdjustment TransactionKind = "ADJUSTMENT"
)

// BatchLine is one stock-affecting line item inside a batch.
type BatchLine struct {
	Key             StockKey
	QuantityKg      decimal.Decimal
	BirdCountChange int
	ReasonCode      ReasonCode
}

// TransactionBatch is a set of line items committed all-or-nothing.
type TransactionBatch struct {
	Kind           TransactionKind
	ReferenceID    string
	IdempotencyKey string
	StaffID        string
	Lines          []BatchLine
}

// Entries materializes the batch into ledger entries, validating every line.
func (b TransactionBatch) Entries(at time.Time) ([]LedgerEntry, error) {
	if len(b.Lines) == 0 {
		return nil, ErrEmptyBatch
	}
	entries := make([]LedgerEntry, 0, len(b.Lines))
	for _, line := range b.Lines {
		entry, err := NewLedgerEntry(line.Key, line.QuantityKg, line.BirdCountChange, line.ReasonCode, b.ReferenceID, at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Keys returns the distinct stock keys the batch touches, in the
// deterministic lock acquisition order.
func (b TransactionBatch) Keys() []StockKey {
	seen := make(map[StockKey]struct{}, len(b.Lines))
	keys := make([]StockKey, 0, len(b.Lines))
	for _, line := range b.Lines {
		if _, ok := seen[line.Key]; ok {
			continue
		}
		seen[line.Key] = struct{}{}
		keys = append(keys, line.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// NetDeltas returns the signed quantity change per key.
func (b TransactionBatch) NetDeltas() map[StockKey]decimal.Decimal {
	deltas := make(map[StockKey]decimal.Decimal, len(b.Lines))
	for _, line := range b.Lines {
		deltas[line.Key] = deltas[line.Key].Add(line.QuantityKg)
	}
	return deltas
}

// TransactionResult is the durable outcome of a committed batch. Replays via
// the idempotency key return the stored result unchanged.
type TransactionResult struct {
	TransactionID string                     `json:"transaction_id"`
	Kind          TransactionKind            `json:"kind"`
	ReferenceID   string                     `json:"reference_id"`
	EntryIDs      []string                   `json:"entry_ids"`
	Balances      map[string]decimal.Decimal `json:"balances"`
	CommittedAt   time.Time                  `json:"committed_at"`
	Replayed      bool                       `json:"replayed,omitempty"`
}
