package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockTransaction is the business record owning a committed batch.
type StockTransaction struct {
	ID             string
	Kind           TransactionKind
	ReferenceID    string
	IdempotencyKey string
	StaffID        string
	CommittedAt    time.Time
}

// LedgerRepository persists the append-only ledger. AppendCommit writes the
// owning transaction record, its entries and the durable result as one atomic
// unit; there is no update or delete operation.
type LedgerRepository interface {
	AppendCommit(ctx context.Context, txn StockTransaction, entries []LedgerEntry, result TransactionResult) error
	// SumForKey sums quantity deltas for a key over the half-open window
	// [after, until). Zero bounds mean unbounded on that side.
	SumForKey(ctx context.Context, key StockKey, after, until time.Time) (decimal.Decimal, error)
	ListForStoreDay(ctx context.Context, storeID int, dayStart time.Time) ([]LedgerEntry, error)
}

// CommitLog resolves idempotency-key replays to their original result.
type CommitLog interface {
	FindResult(ctx context.Context, idempotencyKey string) (*TransactionResult, error)
}

// SnapshotStore persists balance snapshots, idempotent per (key, date).
type SnapshotStore interface {
	Save(ctx context.Context, snapshot BalanceSnapshot) error
	LatestBefore(ctx context.Context, key StockKey, asOf time.Time) (*BalanceSnapshot, error)
}
