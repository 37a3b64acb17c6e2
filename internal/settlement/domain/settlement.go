package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
)

// Status is the settlement workflow state. Transitions are monotonic;
// StatusLocked and StatusMissedLocked are terminal.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusSubmitted    Status = "SUBMITTED"
	StatusApproved     Status = "APPROVED"
	StatusLocked       Status = "LOCKED"
	StatusMissedLocked Status = "MISSED_LOCKED"
)

// Item is the declared-vs-expected stock of one pool at settlement time.
type Item struct {
	BirdType      inventory.BirdType
	InventoryType inventory.InventoryType
	ExpectedKg    decimal.Decimal
	DeclaredKg    decimal.Decimal
	VarianceKg    decimal.Decimal
	VarianceType  VarianceType
}

// Settlement is the daily reconciliation aggregate for one store. One exists
// per store per day; it is never physically deleted.
type Settlement struct {
	ID            string
	StoreID       int
	Date          time.Time
	Status        Status
	DeclaredCash  decimal.Decimal
	ExpectedCash  decimal.Decimal
	CashVariance  decimal.Decimal
	ExpenseAmount decimal.Decimal
	Items         []Item
	SubmittedBy   string
	SubmittedAt   time.Time
	ApprovedBy    string
	ApprovedAt    time.Time
	LockedAt      time.Time
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BuildSettlementID derives the deterministic identity for a store day.
func BuildSettlementID(storeID int, date time.Time) string {
	base := strconv.Itoa(storeID) + "|" + date.UTC().Format("20060102")
	sum := sha256.Sum256([]byte(base))
	return "set-" + hex.EncodeToString(sum[:8])
}

// NewSettlement creates a draft for a store day.
func NewSettlement(storeID int, date time.Time, at time.Time) (*Settlement, error) {
	if storeID <= 0 {
		return nil, inventory.ErrInvalidStore
	}
	if date.IsZero() {
		return nil, ErrInvalidDate
	}
	day := time.Date(date.UTC().Year(), date.UTC().Month(), date.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return &Settlement{
		ID:        BuildSettlementID(storeID, day),
		StoreID:   storeID,
		Date:      day,
		Status:    StatusDraft,
		Version:   1,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}, nil
}

// SubmitInput carries the manager's declarations.
type SubmitInput struct {
	DeclaredCash  decimal.Decimal
	ExpectedCash  decimal.Decimal
	ExpenseAmount decimal.Decimal
	Items         []Item
	SubmittedBy   string
}

// Submit moves DRAFT to SUBMITTED, computing signed variances per item.
// Item.ExpectedKg must already be filled from the ledger balance.
func (s *Settlement) Submit(input SubmitInput, at time.Time) error {
	if s.Status != StatusDraft {
		return &TransitionError{ID: s.ID, From: s.Status, To: StatusSubmitted}
	}
	if input.SubmittedBy == "" {
		return ErrMissingSubmitter
	}
	items := make([]Item, len(input.Items))
	for i, item := range input.Items {
		item.VarianceKg = item.DeclaredKg.Sub(item.ExpectedKg).Round(3)
		item.VarianceType = ClassifyVariance(item.VarianceKg)
		items[i] = item
	}
	s.Items = items
	s.DeclaredCash = input.DeclaredCash.Round(2)
	s.ExpectedCash = input.ExpectedCash.Round(2)
	s.CashVariance = s.DeclaredCash.Sub(s.ExpectedCash)
	s.ExpenseAmount = input.ExpenseAmount.Round(2)
	s.SubmittedBy = input.SubmittedBy
	s.SubmittedAt = at.UTC()
	s.Status = StatusSubmitted
	s.UpdatedAt = at.UTC()
	return nil
}

// Approve moves SUBMITTED to APPROVED.
func (s *Settlement) Approve(approvedBy string, at time.Time) error {
	if s.Status != StatusSubmitted {
		return &TransitionError{ID: s.ID, From: s.Status, To: StatusApproved}
	}
	s.ApprovedBy = approvedBy
	s.ApprovedAt = at.UTC()
	s.Status = StatusApproved
	s.UpdatedAt = at.UTC()
	return nil
}

// Lock moves APPROVED to the terminal LOCKED state.
func (s *Settlement) Lock(at time.Time) error {
	if s.Status != StatusApproved {
		return &TransitionError{ID: s.ID, From: s.Status, To: StatusLocked}
	}
	s.LockedAt = at.UTC()
	s.Status = StatusLocked
	s.UpdatedAt = at.UTC()
	return nil
}

// MarkMissed moves a stale DRAFT to the terminal MISSED_LOCKED penalty state.
// This is a policy timeout, not a user action.
func (s *Settlement) MarkMissed(at time.Time) error {
	if s.Status != StatusDraft {
		return &TransitionError{ID: s.ID, From: s.Status, To: StatusMissedLocked}
	}
	s.LockedAt = at.UTC()
	s.Status = StatusMissedLocked
	s.UpdatedAt = at.UTC()
	return nil
}

// Terminal reports whether no further transitions are possible.
func (s *Settlement) Terminal() bool {
	return s.Status == StatusLocked || s.Status == StatusMissedLocked
}

// NegativeVarianceItems returns the items with lost stock.
func (s *Settlement) NegativeVarianceItems() []Item {
	var out []Item
	for _, item := range s.Items {
		if item.VarianceType == VarianceNegative {
			out = append(out, item)
		}
	}
	return out
}

// PositiveVarianceItems returns the items with found stock.
func (s *Settlement) PositiveVarianceItems() []Item {
	var out []Item
	for _, item := range s.Items {
		if item.VarianceType == VariancePositive {
			out = append(out, item)
		}
	}
	return out
}

// AllZeroVariance reports a perfect settlement with at least one item.
func (s *Settlement) AllZeroVariance() bool {
	if len(s.Items) == 0 {
		return false
	}
	for _, item := range s.Items {
		if item.VarianceType != VarianceZero {
			return false
		}
	}
	return true
}
