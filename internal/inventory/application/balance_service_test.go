package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/inventory/infrastructure/memory"
)

type settableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *settableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *settableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func commitAt(t *testing.T, guard *TransactionGuard, kind inventory.TransactionKind, ref string, lines ...inventory.BatchLine) {
	t.Helper()
	if _, err := guard.Commit(context.Background(), inventory.TransactionBatch{
		Kind:        kind,
		ReferenceID: ref,
		Lines:       lines,
	}); err != nil {
		t.Fatalf("commit %s: %v", ref, err)
	}
}

func TestMovementReportIdentity(t *testing.T) {
	repo := memory.NewLedgerRepository()
	clock := &settableClock{now: time.Date(2026, time.March, 9, 15, 0, 0, 0, time.UTC)}
	guard := newGuard(t, repo, WithClock(clock.Now))
	service, err := NewBalanceService(repo, repo)
	if err != nil {
		t.Fatalf("new balance service: %v", err)
	}
	live := mustKey(t, 3, inventory.BirdBroiler, inventory.InvLive)
	skin := mustKey(t, 3, inventory.BirdBroiler, inventory.InvSkin)

	// Day before: opening stock.
	commitAt(t, guard, inventory.KindPurchase, "purchase-0",
		inventory.BatchLine{Key: live, QuantityKg: decimal.RequireFromString("120.000"), ReasonCode: inventory.ReasonPurchaseReceived})

	// Report day: purchase, processing, sale, adjustment.
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	clock.Set(day.Add(8 * time.Hour))
	commitAt(t, guard, inventory.KindPurchase, "purchase-1",
		inventory.BatchLine{Key: live, QuantityKg: decimal.RequireFromString("40.000"), ReasonCode: inventory.ReasonPurchaseReceived})
	clock.Set(day.Add(10 * time.Hour))
	commitAt(t, guard, inventory.KindProcessing, "proc-1",
		inventory.BatchLine{Key: live, QuantityKg: decimal.RequireFromString("-30.000"), ReasonCode: inventory.ReasonProcessingDebit},
		inventory.BatchLine{Key: skin, QuantityKg: decimal.RequireFromString("26.000"), ReasonCode: inventory.ReasonProcessingCredit},
		inventory.BatchLine{Key: skin, QuantityKg: decimal.RequireFromString("-4.000"), ReasonCode: inventory.ReasonWastage})
	clock.Set(day.Add(12 * time.Hour))
	commitAt(t, guard, inventory.KindSale, "sale-1",
		inventory.BatchLine{Key: skin, QuantityKg: decimal.RequireFromString("-10.500"), ReasonCode: inventory.ReasonSaleDebit})
	clock.Set(day.Add(18 * time.Hour))
	commitAt(t, guard, inventory.KindAdjustment, "adj-1",
		inventory.BatchLine{Key: live, QuantityKg: decimal.RequireFromString("-2.000"), ReasonCode: inventory.ReasonAdjustmentDebit})

	// Day after: must not leak into the report.
	clock.Set(day.Add(26 * time.Hour))
	commitAt(t, guard, inventory.KindSale, "sale-2",
		inventory.BatchLine{Key: skin, QuantityKg: decimal.RequireFromString("-1.000"), ReasonCode: inventory.ReasonSaleDebit})

	liveReport, err := service.MovementReport(context.Background(), live, day)
	if err != nil {
		t.Fatalf("movement report: %v", err)
	}
	if !liveReport.Opening.Equal(decimal.RequireFromString("120.000")) {
		t.Fatalf("live opening = %s, want 120.000", liveReport.Opening)
	}
	if !liveReport.Purchases.Equal(decimal.RequireFromString("40.000")) {
		t.Fatalf("live purchases = %s, want 40.000", liveReport.Purchases)
	}
	if !liveReport.ProcessingOut.Equal(decimal.RequireFromString("30.000")) {
		t.Fatalf("live processing out = %s, want 30.000", liveReport.ProcessingOut)
	}
	if !liveReport.Adjustments.Equal(decimal.RequireFromString("-2.000")) {
		t.Fatalf("live adjustments = %s, want -2.000", liveReport.Adjustments)
	}
	if !liveReport.Closing.Equal(decimal.RequireFromString("128.000")) {
		t.Fatalf("live closing = %s, want 128.000", liveReport.Closing)
	}
	if !liveReport.Balanced() {
		t.Fatalf("live report identity broken: closing-opening=%s net=%s",
			liveReport.Closing.Sub(liveReport.Opening), liveReport.NetMovement())
	}

	skinReport, err := service.MovementReport(context.Background(), skin, day)
	if err != nil {
		t.Fatalf("movement report: %v", err)
	}
	if !skinReport.ProcessingIn.Equal(decimal.RequireFromString("26.000")) {
		t.Fatalf("skin processing in = %s, want 26.000", skinReport.ProcessingIn)
	}
	if !skinReport.Sales.Equal(decimal.RequireFromString("10.500")) {
		t.Fatalf("skin sales = %s, want 10.500", skinReport.Sales)
	}
	if !skinReport.Wastage.Equal(decimal.RequireFromString("4.000")) {
		t.Fatalf("skin wastage = %s, want 4.000", skinReport.Wastage)
	}
	if !skinReport.Balanced() {
		t.Fatalf("skin report identity broken")
	}
	// Next-day sale excluded from the day's buckets.
	if !skinReport.Closing.Equal(decimal.RequireFromString("11.500")) {
		t.Fatalf("skin closing = %s, want 11.500", skinReport.Closing)
	}
}

func TestSnapshotIdempotentAndConsistent(t *testing.T) {
	repo := memory.NewLedgerRepository()
	clock := &settableClock{now: time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC)}
	guard := newGuard(t, repo, WithClock(clock.Now))
	service, err := NewBalanceService(repo, repo)
	if err != nil {
		t.Fatalf("new balance service: %v", err)
	}
	key := mustKey(t, 2, inventory.BirdParentCull, inventory.InvLive)

	commitAt(t, guard, inventory.KindPurchase, "purchase-1",
		inventory.BatchLine{Key: key, QuantityKg: decimal.RequireFromString("55.000"), ReasonCode: inventory.ReasonPurchaseReceived})

	day := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	first, err := service.TakeSnapshot(context.Background(), key, day)
	if err != nil {
		t.Fatalf("take snapshot: %v", err)
	}
	if !first.BalanceKg.Equal(decimal.RequireFromString("55.000")) {
		t.Fatalf("snapshot balance = %s, want 55.000", first.BalanceKg)
	}

	// Re-running overwrites; the balance must not double.
	second, err := service.TakeSnapshot(context.Background(), key, day)
	if err != nil {
		t.Fatalf("retake snapshot: %v", err)
	}
	if !second.BalanceKg.Equal(first.BalanceKg) {
		t.Fatalf("snapshot changed on rerun: %s vs %s", second.BalanceKg, first.BalanceKg)
	}

	// Entries after the cutoff stack on top of the snapshot value.
	clock.Set(day.Add(30 * time.Hour))
	commitAt(t, guard, inventory.KindSale, "sale-1",
		inventory.BatchLine{Key: key, QuantityKg: decimal.RequireFromString("-5.000"), ReasonCode: inventory.ReasonSaleDebit})

	balance, err := service.CurrentBalance(context.Background(), key)
	if err != nil {
		t.Fatalf("current balance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("50.000")) {
		t.Fatalf("balance = %s, want 50.000", balance)
	}

	// Point-in-time read before the sale still sees the snapshot value.
	asOf, err := service.BalanceAsOf(context.Background(), key, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("balance as of: %v", err)
	}
	if !asOf.Equal(decimal.RequireFromString("55.000")) {
		t.Fatalf("as-of balance = %s, want 55.000", asOf)
	}
}
