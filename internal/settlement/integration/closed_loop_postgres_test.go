package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	invapp "poultry-core/internal/inventory/application"
	inventory "poultry-core/internal/inventory/domain"
	invpg "poultry-core/internal/inventory/infrastructure/postgres"
	pointsapp "poultry-core/internal/points/application"
	points "poultry-core/internal/points/domain"
	pointspg "poultry-core/internal/points/infrastructure/postgres"
	settleapp "poultry-core/internal/settlement/application"
	settlement "poultry-core/internal/settlement/domain"
	settlepg "poultry-core/internal/settlement/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

// Exercises the full day loop against a real database: stock in through the
// guard, settlement submit with a shortage, approval and lock, checking the
// ledger deduction and the penalty point entry land in their tables.
func TestSettlementClosedLoopPostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "inventory_ledger") ||
		!tableExists(db, "stock_transactions") ||
		!tableExists(db, "settlements") ||
		!tableExists(db, "variance_logs") ||
		!tableExists(db, "point_entries") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	storeID := 9901
	staffID := "it-staff-9901"
	day := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return day.Add(9 * time.Hour) }

	cleanup(ctx, t, db, storeID, staffID)

	ledger := invpg.NewLedgerRepository(db)
	guard, err := invapp.NewTransactionGuard(ledger, ledger, invapp.NewKeyMutex(), invapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	balances, err := invapp.NewBalanceService(ledger, ledger)
	if err != nil {
		t.Fatalf("new balance service: %v", err)
	}
	pointsService, err := pointsapp.NewService(pointspg.NewRepository(db), pointsapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new points service: %v", err)
	}
	service, err := settleapp.NewService(
		settlepg.NewRepository(db),
		settlepg.NewVarianceStore(db),
		balances,
		guard,
		recorderOver{pointsService},
		settleapp.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new settlement service: %v", err)
	}

	key, err := inventory.NewStockKey(storeID, inventory.BirdBroiler, inventory.InvLive)
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	if _, err := guard.Commit(ctx, inventory.TransactionBatch{
		Kind:           inventory.KindPurchase,
		ReferenceID:    "it-po-9901",
		IdempotencyKey: "it-9901-purchase",
		StaffID:        staffID,
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.NewFromInt(50),
			ReasonCode: inventory.ReasonPurchaseReceived,
		}},
	}); err != nil {
		t.Fatalf("purchase commit: %v", err)
	}
	if _, err := guard.Commit(ctx, inventory.TransactionBatch{
		Kind:           inventory.KindSale,
		ReferenceID:    "it-sale-9901",
		IdempotencyKey: "it-9901-sale",
		StaffID:        staffID,
		Lines: []inventory.BatchLine{{
			Key:        key,
			QuantityKg: decimal.NewFromInt(-20),
			ReasonCode: inventory.ReasonSaleDebit,
		}},
	}); err != nil {
		t.Fatalf("sale commit: %v", err)
	}

	st, err := service.Create(ctx, storeID, day)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Declares 28 against an expected 30: a 2 kg shortage.
	st, err = service.Submit(ctx, st.ID, settleapp.SubmitRequest{
		ExpectedVersion: st.Version,
		DeclaredCash:    decimal.NewFromInt(400),
		ExpectedCash:    decimal.NewFromInt(400),
		DeclaredStock: []settleapp.DeclaredItem{{
			BirdType:      inventory.BirdBroiler,
			InventoryType: inventory.InvLive,
			DeclaredKg:    decimal.NewFromInt(28),
		}},
		SubmittedBy: staffID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Status != settlement.StatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", st.Status)
	}

	balance, err := balances.CurrentBalance(ctx, key)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(3) != "28.000" {
		t.Fatalf("balance after submit = %s, want 28.000", balance.StringFixed(3))
	}

	_, records, err := service.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("variance records = %d, want 1", len(records))
	}
	if records[0].Status != settlement.ResolutionDeducted {
		t.Fatalf("variance status = %s, want DEDUCTED", records[0].Status)
	}
	if records[0].LedgerEntryID == "" {
		t.Fatal("variance record missing ledger entry id")
	}

	history, err := pointsService.History(ctx, staffID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var penalty *points.PointEntry
	for i := range history {
		if history[i].Reason == points.ReasonNegativeVariance {
			penalty = &history[i]
		}
	}
	if penalty == nil {
		t.Fatal("expected a NEGATIVE_VARIANCE entry")
	}
	if penalty.PointsChange.StringFixed(2) != "-16.00" {
		t.Fatalf("penalty = %s, want -16.00", penalty.PointsChange.StringFixed(2))
	}

	st, err = service.Approve(ctx, st.ID, "it-mgr-9901", st.Version)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	st, err = service.Lock(ctx, st.ID, st.Version)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if st.Status != settlement.StatusLocked {
		t.Fatalf("status = %s, want LOCKED", st.Status)
	}
}

type recorderOver struct {
	service *pointsapp.Service
}

func (r recorderOver) RecordAward(ctx context.Context, award settleapp.PointAward) error {
	_, err := r.service.Record(ctx, pointsapp.RecordInput{
		StaffID:         award.StaffID,
		StoreID:         award.StoreID,
		Reason:          award.Reason,
		ReferenceID:     award.ReferenceID,
		WeightHandledKg: award.WeightHandledKg,
		VarianceKg:      award.VarianceKg,
	})
	return err
}

func cleanup(ctx context.Context, t *testing.T, db *sql.DB, storeID int, staffID string) {
	t.Helper()
	statements := []struct {
		query string
		arg   any
	}{
		{"DELETE FROM point_entries WHERE staff_id = $1", staffID},
		{"DELETE FROM variance_logs WHERE settlement_id IN (SELECT id FROM settlements WHERE store_id = $1)", storeID},
		{"DELETE FROM settlements WHERE store_id = $1", storeID},
		{`WITH txns AS (SELECT DISTINCT transaction_id FROM inventory_ledger WHERE store_id = $1),
       purged AS (DELETE FROM inventory_ledger WHERE store_id = $1)
  DELETE FROM stock_transactions WHERE id IN (SELECT transaction_id FROM txns)`, storeID},
		{"DELETE FROM balance_snapshots WHERE store_id = $1", storeID},
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.query, stmt.arg); err != nil {
			t.Logf("cleanup %q: %v", stmt.query, err)
		}
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
