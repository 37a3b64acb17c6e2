package inventory

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one immutable signed stock movement.
// Entries are never updated or deleted; corrections are offsetting entries.
type LedgerEntry struct {
	ID              string
	StoreID         int
	BirdType        BirdType
	InventoryType   InventoryType
	QuantityKg      decimal.Decimal
	BirdCountChange int
	ReasonCode      ReasonCode
	ReferenceID     string
	CreatedAt       time.Time
}

// NewLedgerEntry validates and builds a ledger entry. The quantity carries the
// sign: credits positive, debits negative, and the sign must agree with the
// reason code direction.
func NewLedgerEntry(key StockKey, quantityKg decimal.Decimal, birdCount int, reason ReasonCode, referenceID string, at time.Time) (LedgerEntry, error) {
	if _, err := NewStockKey(key.StoreID, key.BirdType, key.InventoryType); err != nil {
		return LedgerEntry{}, err
	}
	if quantityKg.IsZero() {
		return LedgerEntry{}, ErrInvalidQuantity
	}
	spec, ok := LookupReason(reason)
	if !ok {
		return LedgerEntry{}, ErrUnknownReason
	}
	if spec.Direction == DirectionCredit && quantityKg.Sign() < 0 {
		return LedgerEntry{}, ErrDirectionMismatch
	}
	if spec.Direction == DirectionDebit && quantityKg.Sign() > 0 {
		return LedgerEntry{}, ErrDirectionMismatch
	}
	if spec.RequiresRef && referenceID == "" {
		return LedgerEntry{}, ErrMissingReference
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return LedgerEntry{
		ID:              NewEntryID(),
		StoreID:         key.StoreID,
		BirdType:        key.BirdType,
		InventoryType:   key.InventoryType,
		QuantityKg:      quantityKg.Round(3),
		BirdCountChange: birdCount,
		ReasonCode:      reason,
		ReferenceID:     referenceID,
		CreatedAt:       at.UTC(),
	}, nil
}

// Key returns the stock key the entry moves.
func (e LedgerEntry) Key() StockKey {
	return StockKey{StoreID: e.StoreID, BirdType: e.BirdType, InventoryType: e.InventoryType}
}

// NewEntryID generates a random ledger entry id.
func NewEntryID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return "led-" + hex.EncodeToString(buf[:])
}
