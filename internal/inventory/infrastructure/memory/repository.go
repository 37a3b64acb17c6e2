package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
)

// LedgerRepository is an in-memory ledger for unit tests.
type LedgerRepository struct {
	mu        sync.RWMutex
	entries   []inventory.LedgerEntry
	results   map[string]inventory.TransactionResult
	snapshots map[string]inventory.BalanceSnapshot
}

// NewLedgerRepository constructs a repository.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		results:   make(map[string]inventory.TransactionResult),
		snapshots: make(map[string]inventory.BalanceSnapshot),
	}
}

// AppendCommit stores the transaction, entries and result atomically.
func (r *LedgerRepository) AppendCommit(ctx context.Context, txn inventory.StockTransaction, entries []inventory.LedgerEntry, result inventory.TransactionResult) error {
	_ = ctx
	if len(entries) == 0 {
		return inventory.ErrEmptyBatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if txn.IdempotencyKey != "" {
		if _, exists := r.results[txn.IdempotencyKey]; exists {
			return inventory.ErrDuplicateCommit
		}
		r.results[txn.IdempotencyKey] = result
	}
	r.entries = append(r.entries, entries...)
	return nil
}

// FindResult returns a previously committed result for the idempotency key.
func (r *LedgerRepository) FindResult(ctx context.Context, idempotencyKey string) (*inventory.TransactionResult, error) {
	_ = ctx
	if idempotencyKey == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[idempotencyKey]
	if !ok {
		return nil, nil
	}
	copy := result
	return &copy, nil
}

// SumForKey sums deltas for a key over the half-open window [after, until).
func (r *LedgerRepository) SumForKey(ctx context.Context, key inventory.StockKey, after, until time.Time) (decimal.Decimal, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, entry := range r.entries {
		if entry.Key() != key {
			continue
		}
		if !after.IsZero() && entry.CreatedAt.Before(after) {
			continue
		}
		if !until.IsZero() && !entry.CreatedAt.Before(until) {
			continue
		}
		sum = sum.Add(entry.QuantityKg)
	}
	return sum, nil
}

// ListForStoreDay returns entries for the store created within the day.
func (r *LedgerRepository) ListForStoreDay(ctx context.Context, storeID int, dayStart time.Time) ([]inventory.LedgerEntry, error) {
	_ = ctx
	dayEnd := dayStart.Add(24 * time.Hour)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []inventory.LedgerEntry
	for _, entry := range r.entries {
		if entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(dayStart) || !entry.CreatedAt.Before(dayEnd) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Save upserts a snapshot for (key, date).
func (r *LedgerRepository) Save(ctx context.Context, snapshot inventory.BalanceSnapshot) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshotKey(snapshot.Key, snapshot.Date)] = snapshot
	return nil
}

// LatestBefore returns the newest snapshot with cutoff at or before asOf.
func (r *LedgerRepository) LatestBefore(ctx context.Context, key inventory.StockKey, asOf time.Time) (*inventory.BalanceSnapshot, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *inventory.BalanceSnapshot
	for _, snap := range r.snapshots {
		if snap.Key != key {
			continue
		}
		if !asOf.IsZero() && snap.CutoffAt.After(asOf) {
			continue
		}
		if best == nil || snap.CutoffAt.After(best.CutoffAt) {
			copy := snap
			best = &copy
		}
	}
	return best, nil
}

// EntryCount reports total stored entries, for assertion convenience.
func (r *LedgerRepository) EntryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func snapshotKey(key inventory.StockKey, date time.Time) string {
	return key.String() + "|" + date.UTC().Format("20060102")
}
