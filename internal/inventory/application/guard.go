package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/observability/metrics"
)

const defaultLockWait = 5 * time.Second

// TransactionGuard commits stock-affecting batches all-or-nothing. It is the
// only writer of ledger entries and the only component holding stock locks.
type TransactionGuard struct {
	repo     inventory.LedgerRepository
	commits  inventory.CommitLog
	locker   KeyLocker
	lockWait time.Duration
	now      func() time.Time
}

// GuardOption configures the guard.
type GuardOption func(*TransactionGuard)

// WithLockWait bounds the wait for stock key locks.
func WithLockWait(wait time.Duration) GuardOption {
	return func(g *TransactionGuard) {
		if wait > 0 {
			g.lockWait = wait
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *TransactionGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewTransactionGuard constructs a guard.
func NewTransactionGuard(repo inventory.LedgerRepository, commits inventory.CommitLog, locker KeyLocker, opts ...GuardOption) (*TransactionGuard, error) {
	if repo == nil {
		return nil, errors.New("transaction guard: nil repo")
	}
	if locker == nil {
		return nil, errors.New("transaction guard: nil locker")
	}
	guard := &TransactionGuard{
		repo:     repo,
		commits:  commits,
		locker:   locker,
		lockWait: defaultLockWait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(guard)
	}
	return guard, nil
}

// Commit validates and commits a batch as one atomic unit.
//
// Holding every touched stock lock, it recomputes balances, rejects any net
// debit that would overdraw a pool, then appends the transaction record and
// all ledger entries in a single write. A repeated idempotency key returns
// the originally stored result instead of re-committing.
func (g *TransactionGuard) Commit(ctx context.Context, batch inventory.TransactionBatch) (inventory.TransactionResult, error) {
	start := g.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveGuardCommit(string(batch.Kind), result, time.Since(start))
	}()

	committedAt := g.now().UTC()
	entries, err := batch.Entries(committedAt)
	if err != nil {
		result = metrics.ResultError
		metrics.IncGuardRejection("invalid_batch")
		return inventory.TransactionResult{}, err
	}

	prior, err := g.findReplay(ctx, batch.IdempotencyKey)
	if err != nil {
		result = metrics.ResultError
		return inventory.TransactionResult{}, err
	}
	if prior != nil {
		return *prior, nil
	}

	keys := batch.Keys()
	lockKeys := make([]string, len(keys))
	for i, key := range keys {
		lockKeys[i] = key.String()
	}
	lockCtx, cancel := context.WithTimeout(ctx, g.lockWait)
	defer cancel()
	release, err := g.locker.Acquire(lockCtx, lockKeys)
	if err != nil {
		result = metrics.ResultError
		metrics.IncGuardRejection("lock_timeout")
		return inventory.TransactionResult{}, err
	}
	defer release()

	// A retry can pass the first lookup while the original commit is still
	// in flight. Identical batches contend on the same lock keys, so a second
	// lookup under the locks sees the original's result once it lands.
	prior, err = g.findReplay(ctx, batch.IdempotencyKey)
	if err != nil {
		result = metrics.ResultError
		return inventory.TransactionResult{}, err
	}
	if prior != nil {
		return *prior, nil
	}

	deltas := batch.NetDeltas()
	balances := make(map[string]decimal.Decimal, len(keys))
	for _, key := range keys {
		balance, err := g.repo.SumForKey(ctx, key, time.Time{}, time.Time{})
		if err != nil {
			result = metrics.ResultError
			return inventory.TransactionResult{}, err
		}
		delta := deltas[key]
		if delta.Sign() < 0 && balance.Add(delta).Sign() < 0 {
			result = metrics.ResultError
			metrics.IncGuardRejection("insufficient_stock")
			return inventory.TransactionResult{}, &inventory.InsufficientStockError{
				Key:       key,
				Requested: delta.Neg(),
				Available: balance,
			}
		}
		balances[key.String()] = balance.Add(delta)
	}

	entryIDs := make([]string, len(entries))
	for i, entry := range entries {
		entryIDs[i] = entry.ID
	}
	txn := inventory.StockTransaction{
		ID:             newTransactionID(),
		Kind:           batch.Kind,
		ReferenceID:    batch.ReferenceID,
		IdempotencyKey: batch.IdempotencyKey,
		StaffID:        batch.StaffID,
		CommittedAt:    committedAt,
	}
	outcome := inventory.TransactionResult{
		TransactionID: txn.ID,
		Kind:          batch.Kind,
		ReferenceID:   batch.ReferenceID,
		EntryIDs:      entryIDs,
		Balances:      balances,
		CommittedAt:   committedAt,
	}

	// Past this point the commit must not be cancelled; it runs to
	// completion or fails atomically in the repository.
	if err := g.repo.AppendCommit(context.WithoutCancel(ctx), txn, entries, outcome); err != nil {
		// Another process committed the key first; surface its stored
		// result as a replay.
		if errors.Is(err, inventory.ErrDuplicateCommit) {
			prior, findErr := g.findReplay(context.WithoutCancel(ctx), batch.IdempotencyKey)
			if findErr == nil && prior != nil {
				return *prior, nil
			}
		}
		result = metrics.ResultError
		return inventory.TransactionResult{}, err
	}
	return outcome, nil
}

// findReplay returns the stored outcome for an idempotency key, marked as a
// replay, or nil when the key is empty or unseen.
func (g *TransactionGuard) findReplay(ctx context.Context, idempotencyKey string) (*inventory.TransactionResult, error) {
	if idempotencyKey == "" || g.commits == nil {
		return nil, nil
	}
	prior, err := g.commits.FindResult(ctx, idempotencyKey)
	if err != nil || prior == nil {
		return nil, err
	}
	metrics.IncGuardReplay()
	replay := *prior
	replay.Replayed = true
	return &replay, nil
}

func newTransactionID() string {
	var buf [12]byte
	_, _ = rand.Read(buf[:])
	return "stx-" + hex.EncodeToString(buf[:])
}
