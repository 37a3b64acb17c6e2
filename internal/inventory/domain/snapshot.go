package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot records a balance as of a cutoff so reads do not replay the
// whole ledger. Re-taking a snapshot for the same (key, date) overwrites.
type BalanceSnapshot struct {
	Key       StockKey
	Date      time.Time
	BalanceKg decimal.Decimal
	CutoffAt  time.Time
	TakenAt   time.Time
}
