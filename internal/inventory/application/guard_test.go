package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/inventory/infrastructure/memory"
)

func mustKey(t *testing.T, store int, bird inventory.BirdType, inv inventory.InventoryType) inventory.StockKey {
	t.Helper()
	key, err := inventory.NewStockKey(store, bird, inv)
	if err != nil {
		t.Fatalf("new stock key: %v", err)
	}
	return key
}

func newGuard(t *testing.T, repo *memory.LedgerRepository, opts ...GuardOption) *TransactionGuard {
	t.Helper()
	guard, err := NewTransactionGuard(repo, repo, NewKeyMutex(), opts...)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return guard
}

func seedStock(t *testing.T, guard *TransactionGuard, key inventory.StockKey, kg string, ref string) {
	t.Helper()
	_, err := guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        inventory.KindPurchase,
		ReferenceID: ref,
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString(kg),
			ReasonCode: inventory.ReasonPurchaseReceived,
		}},
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func balanceOf(t *testing.T, repo *memory.LedgerRepository, key inventory.StockKey) decimal.Decimal {
	t.Helper()
	sum, err := repo.SumForKey(context.Background(), key, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("sum for key: %v", err)
	}
	return sum
}

func TestCommitAppliesAllDeltas(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	live := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)
	skin := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)

	seedStock(t, guard, live, "100.000", "purchase-1")

	// Processing: 20 kg live in, 17.5 kg skin out, 2.5 kg wastage.
	result, err := guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        inventory.KindProcessing,
		ReferenceID: "proc-1",
		Lines: []inventory.BatchLine{
			{Key: live, QuantityKg: decimal.RequireFromString("-20.000"), ReasonCode: inventory.ReasonProcessingDebit},
			{Key: skin, QuantityKg: decimal.RequireFromString("17.500"), ReasonCode: inventory.ReasonProcessingCredit},
			{Key: skin, QuantityKg: decimal.RequireFromString("-2.500"), ReasonCode: inventory.ReasonWastage},
		},
	})
	if err != nil {
		t.Fatalf("commit processing: %v", err)
	}
	if len(result.EntryIDs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.EntryIDs))
	}
	if got := balanceOf(t, repo, live); !got.Equal(decimal.RequireFromString("80.000")) {
		t.Fatalf("live balance = %s, want 80.000", got)
	}
	if got := balanceOf(t, repo, skin); !got.Equal(decimal.RequireFromString("15.000")) {
		t.Fatalf("skin balance = %s, want 15.000", got)
	}
	if got := result.Balances[skin.String()]; !got.Equal(decimal.RequireFromString("15.000")) {
		t.Fatalf("result balance = %s, want 15.000", got)
	}

	// Wastage debit shares a key with the processing credit; the guard checks
	// net deltas, so the mixed-sign key must not trip the stock check.
	if got := balanceOf(t, repo, skin).Sign(); got < 0 {
		t.Fatalf("skin balance went negative")
	}
}

func TestCommitRejectsOversell(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)
	seedStock(t, guard, key, "10.000", "purchase-1")
	before := repo.EntryCount()

	_, err := guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        inventory.KindSale,
		ReferenceID: "sale-1",
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString("-15.000"),
			ReasonCode: inventory.ReasonSaleDebit,
		}},
	})
	var insufficient *inventory.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Key != key {
		t.Fatalf("error names key %s, want %s", insufficient.Key, key)
	}
	if !insufficient.Shortfall().Equal(decimal.RequireFromString("5.000")) {
		t.Fatalf("shortfall = %s, want 5.000", insufficient.Shortfall())
	}
	if repo.EntryCount() != before {
		t.Fatalf("failed batch appended entries")
	}
}

func TestCommitAtomicAcrossKeys(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	skin := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)
	skinless := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkinless)
	seedStock(t, guard, skin, "50.000", "purchase-1")
	seedStock(t, guard, skinless, "2.000", "purchase-2")
	before := repo.EntryCount()

	// First line alone is fine; second oversells. Nothing may commit.
	_, err := guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        inventory.KindSale,
		ReferenceID: "sale-1",
		Lines: []inventory.BatchLine{
			{Key: skin, QuantityKg: decimal.RequireFromString("-5.000"), ReasonCode: inventory.ReasonSaleDebit},
			{Key: skinless, QuantityKg: decimal.RequireFromString("-3.000"), ReasonCode: inventory.ReasonSaleDebit},
		},
	})
	var insufficient *inventory.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if repo.EntryCount() != before {
		t.Fatalf("partial commit detected")
	}
	if got := balanceOf(t, repo, skin); !got.Equal(decimal.RequireFromString("50.000")) {
		t.Fatalf("skin balance changed to %s", got)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)
	seedStock(t, guard, key, "10.000", "purchase-1")

	const attempts = 10
	saleKg := decimal.RequireFromString("3.000")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := guard.Commit(context.Background(), inventory.TransactionBatch{
				Kind:        inventory.KindSale,
				ReferenceID: "sale-" + string(rune('a'+n)),
				Lines: []inventory.BatchLine{{
					Key:        key,
					QuantityKg: saleKg.Neg(),
					ReasonCode: inventory.ReasonSaleDebit,
				}},
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var insufficient *inventory.InsufficientStockError
			if !errors.As(err, &insufficient) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("succeeded = %d, want 3 (10 kg / 3 kg)", succeeded)
	}
	final := balanceOf(t, repo, key)
	if !final.Equal(decimal.RequireFromString("1.000")) {
		t.Fatalf("final balance = %s, want 1.000", final)
	}
	if final.Sign() < 0 {
		t.Fatalf("oversold: balance %s", final)
	}
}

func TestConcurrentBatchesOverlappingKeysNoDeadlock(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	live := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)
	skin := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)
	skinless := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkinless)
	seedStock(t, guard, live, "1000.000", "purchase-1")
	seedStock(t, guard, skin, "1000.000", "purchase-2")
	seedStock(t, guard, skinless, "1000.000", "purchase-3")

	// Batches touch the same keys in opposite declaration order; the sorted
	// acquisition order must keep them deadlock-free.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			lines := []inventory.BatchLine{
				{Key: skin, QuantityKg: decimal.RequireFromString("-1.000"), ReasonCode: inventory.ReasonSaleDebit},
				{Key: skinless, QuantityKg: decimal.RequireFromString("-1.000"), ReasonCode: inventory.ReasonSaleDebit},
			}
			if n%2 == 0 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			if _, err := guard.Commit(context.Background(), inventory.TransactionBatch{
				Kind:        inventory.KindSale,
				ReferenceID: "sale-x",
				Lines:       lines,
			}); err != nil {
				t.Errorf("commit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := balanceOf(t, repo, skin); !got.Equal(decimal.RequireFromString("950.000")) {
		t.Fatalf("skin balance = %s, want 950.000", got)
	}
	if got := balanceOf(t, repo, skinless); !got.Equal(decimal.RequireFromString("950.000")) {
		t.Fatalf("skinless balance = %s, want 950.000", got)
	}
}

func TestIdempotentReplay(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvSkin)
	seedStock(t, guard, key, "20.000", "purchase-1")

	batch := inventory.TransactionBatch{
		Kind:           inventory.KindSale,
		ReferenceID:    "sale-1",
		IdempotencyKey: "idem-123",
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString("-4.000"),
			ReasonCode: inventory.ReasonSaleDebit,
		}},
	}
	first, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	countAfterFirst := repo.EntryCount()

	second, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("retry not marked as replay")
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("replay returned a different transaction: %s vs %s", second.TransactionID, first.TransactionID)
	}
	if len(second.EntryIDs) != len(first.EntryIDs) || second.EntryIDs[0] != first.EntryIDs[0] {
		t.Fatalf("replay returned different entry ids")
	}
	if repo.EntryCount() != countAfterFirst {
		t.Fatalf("retry appended new entries")
	}
	if got := balanceOf(t, repo, key); !got.Equal(decimal.RequireFromString("16.000")) {
		t.Fatalf("balance = %s, want 16.000 (single application)", got)
	}
}

// staleCommitLog misses its first reads, modelling a lookup racing a commit
// that has not landed yet, then delegates to the real log.
type staleCommitLog struct {
	*memory.LedgerRepository
	mu     sync.Mutex
	misses int
}

func (s *staleCommitLog) FindResult(ctx context.Context, key string) (*inventory.TransactionResult, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()
	return s.LedgerRepository.FindResult(ctx, key)
}

func TestRetryDuringInFlightCommitReplays(t *testing.T) {
	repo := memory.NewLedgerRepository()
	// The first commit misses twice; the retry's pre-lock lookup also misses,
	// leaving only the re-check under the stock locks to catch the duplicate.
	commits := &staleCommitLog{LedgerRepository: repo, misses: 3}
	guard, err := NewTransactionGuard(repo, commits, NewKeyMutex())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)

	batch := inventory.TransactionBatch{
		Kind:           inventory.KindPurchase,
		ReferenceID:    "purchase-1",
		IdempotencyKey: "idem-race",
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString("30.000"),
			ReasonCode: inventory.ReasonPurchaseReceived,
		}},
	}
	first, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	countAfterFirst := repo.EntryCount()

	second, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("retry not marked as replay")
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("retry committed a second transaction: %s vs %s", second.TransactionID, first.TransactionID)
	}
	if repo.EntryCount() != countAfterFirst {
		t.Fatalf("retry appended new entries")
	}
	if got := balanceOf(t, repo, key); !got.Equal(decimal.RequireFromString("30.000")) {
		t.Fatalf("balance = %s, want 30.000 (single application)", got)
	}
}

func TestDuplicateAppendReturnsReplay(t *testing.T) {
	repo := memory.NewLedgerRepository()
	// Every lookup before the append misses, so the retry reaches the store
	// and the key's uniqueness constraint has to stop the double commit.
	commits := &staleCommitLog{LedgerRepository: repo, misses: 4}
	guard, err := NewTransactionGuard(repo, commits, NewKeyMutex())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)

	batch := inventory.TransactionBatch{
		Kind:           inventory.KindPurchase,
		ReferenceID:    "purchase-1",
		IdempotencyKey: "idem-dup",
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString("12.000"),
			ReasonCode: inventory.ReasonPurchaseReceived,
		}},
	}
	first, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	countAfterFirst := repo.EntryCount()

	second, err := guard.Commit(context.Background(), batch)
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("retry not marked as replay")
	}
	if second.TransactionID != first.TransactionID {
		t.Fatalf("retry committed a second transaction: %s vs %s", second.TransactionID, first.TransactionID)
	}
	if repo.EntryCount() != countAfterFirst {
		t.Fatalf("retry appended new entries")
	}
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	repo := memory.NewLedgerRepository()
	locker := NewKeyMutex()
	guard, err := NewTransactionGuard(repo, repo, locker, WithLockWait(30*time.Millisecond))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)

	// Hold the lock externally so the commit times out.
	release, err := locker.Acquire(context.Background(), []string{key.String()})
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer release()

	_, err = guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        inventory.KindPurchase,
		ReferenceID: "purchase-1",
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.RequireFromString("5.000"),
			ReasonCode: inventory.ReasonPurchaseReceived,
		}},
	})
	var timeout *inventory.LockTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected LockTimeoutError, got %v", err)
	}
	if timeout.Key != key.String() {
		t.Fatalf("timeout names key %s, want %s", timeout.Key, key)
	}
	if !inventory.IsRetryable(err) {
		t.Fatalf("lock timeout must be retryable")
	}
	if repo.EntryCount() != 0 {
		t.Fatalf("timed-out batch appended entries")
	}
}

func TestCommitRejectsInvalidBatches(t *testing.T) {
	repo := memory.NewLedgerRepository()
	guard := newGuard(t, repo)
	key := mustKey(t, 1, inventory.BirdBroiler, inventory.InvLive)

	cases := []struct {
		name  string
		batch inventory.TransactionBatch
		want  error
	}{
		{
			name:  "empty batch",
			batch: inventory.TransactionBatch{Kind: inventory.KindSale, ReferenceID: "sale-1"},
			want:  inventory.ErrEmptyBatch,
		},
		{
			name: "zero quantity",
			batch: inventory.TransactionBatch{
				Kind:        inventory.KindSale,
				ReferenceID: "sale-1",
				Lines:       []inventory.BatchLine{{Key: key, QuantityKg: decimal.Zero, ReasonCode: inventory.ReasonSaleDebit}},
			},
			want: inventory.ErrInvalidQuantity,
		},
		{
			name: "direction mismatch",
			batch: inventory.TransactionBatch{
				Kind:        inventory.KindSale,
				ReferenceID: "sale-1",
				Lines:       []inventory.BatchLine{{Key: key, QuantityKg: decimal.RequireFromString("3.000"), ReasonCode: inventory.ReasonSaleDebit}},
			},
			want: inventory.ErrDirectionMismatch,
		},
		{
			name: "missing reference",
			batch: inventory.TransactionBatch{
				Kind:  inventory.KindSale,
				Lines: []inventory.BatchLine{{Key: key, QuantityKg: decimal.RequireFromString("-3.000"), ReasonCode: inventory.ReasonSaleDebit}},
			},
			want: inventory.ErrMissingReference,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := guard.Commit(context.Background(), tc.batch)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if repo.EntryCount() != 0 {
				t.Fatalf("invalid batch appended entries")
			}
		})
	}
}
