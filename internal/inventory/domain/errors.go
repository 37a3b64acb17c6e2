package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStore         = errors.New("inventory: invalid store id")
	ErrInvalidBirdType      = errors.New("inventory: invalid bird type")
	ErrInvalidInventoryType = errors.New("inventory: invalid inventory type")
	ErrInvalidQuantity      = errors.New("inventory: quantity delta must be non-zero")
	ErrUnknownReason        = errors.New("inventory: unknown reason code")
	ErrDirectionMismatch    = errors.New("inventory: delta sign does not match reason direction")
	ErrMissingReference     = errors.New("inventory: reason code requires a reference id")
	ErrEmptyBatch           = errors.New("inventory: batch has no lines")
	ErrNilEntry             = errors.New("inventory: nil entry")
	ErrDuplicateCommit      = errors.New("inventory: idempotency key already committed")
)

// InsufficientStockError reports a debit that would overdraw a stock pool.
type InsufficientStockError struct {
	Key       StockKey
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	shortfall := e.Requested.Sub(e.Available)
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %s kg, available %s kg (short %s kg)",
		e.Key, e.Requested.StringFixed(3), e.Available.StringFixed(3), shortfall.StringFixed(3))
}

// Shortfall returns how much the request exceeds the available balance.
func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// LockTimeoutError reports a bounded lock wait that expired. Retryable.
type LockTimeoutError struct {
	Key string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("inventory: timed out waiting for stock lock %s", e.Key)
}

// IsRetryable reports whether the caller may retry the commit as-is.
func IsRetryable(err error) bool {
	var lockErr *LockTimeoutError
	return errors.As(err, &lockErr)
}
