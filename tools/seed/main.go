// Command seed fills the stock ledger with a reproducible trading history:
// opening balances, daily purchases, processing runs and sales, all committed
// through the transaction guard so every invariant the server enforces holds
// for the seeded data too. Idempotency keys make re-runs replay instead of
// double-seeding.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	invapp "poultry-core/internal/inventory/application"
	inventory "poultry-core/internal/inventory/domain"
	invpg "poultry-core/internal/inventory/infrastructure/postgres"
)

type config struct {
	dsn       string
	stores    int
	startDate string
	days      int
	seed      int64
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.stores <= 0 {
		log.Fatal("stores must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	start, err := time.Parse("2006-01-02", cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ledger := invpg.NewLedgerRepository(db)
	rng := rand.New(rand.NewSource(cfg.seed))
	ctx := context.Background()

	log.Printf("seeding ledger: stores=%d days=%d start=%s", cfg.stores, cfg.days, start.Format("2006-01-02"))
	for storeID := 1; storeID <= cfg.stores; storeID++ {
		if err := seedStore(ctx, ledger, storeID, start, cfg.days, rng); err != nil {
			log.Fatalf("seed store %d: %v", storeID, err)
		}
	}
	log.Printf("seed complete")
}

func seedStore(ctx context.Context, ledger *invpg.LedgerRepository, storeID int, start time.Time, days int, rng *rand.Rand) error {
	live, err := inventory.NewStockKey(storeID, inventory.BirdBroiler, inventory.InvLive)
	if err != nil {
		return err
	}
	skin, err := inventory.NewStockKey(storeID, inventory.BirdBroiler, inventory.InvSkin)
	if err != nil {
		return err
	}

	for day := 0; day < days; day++ {
		date := invapp.DayStart(start).AddDate(0, 0, day)
		committedAt := date.Add(8 * time.Hour)
		guard, err := invapp.NewTransactionGuard(ledger, ledger, invapp.NewKeyMutex(),
			invapp.WithClock(func() time.Time { return committedAt }))
		if err != nil {
			return err
		}

		purchased := kg(80 + rng.Float64()*40)
		if _, err := guard.Commit(ctx, inventory.TransactionBatch{
			Kind:           inventory.KindPurchase,
			ReferenceID:    fmt.Sprintf("seed-po-%d-%s", storeID, date.Format("20060102")),
			IdempotencyKey: fmt.Sprintf("seed-%d-%s-purchase", storeID, date.Format("20060102")),
			StaffID:        "seed",
			Lines: []inventory.BatchLine{{
				Key:             live,
				QuantityKg:      purchased,
				BirdCountChange: int(purchased.IntPart() / 2),
				ReasonCode:      inventory.ReasonPurchaseReceived,
			}},
		}); err != nil {
			return err
		}

		// Process roughly half the day's intake; skin yield loses a cut
		// to wastage.
		processed := purchased.Mul(decimal.NewFromFloat(0.5)).Round(3)
		yielded := processed.Mul(decimal.NewFromFloat(0.9)).Round(3)
		wasted := processed.Sub(yielded)
		if _, err := guard.Commit(ctx, inventory.TransactionBatch{
			Kind:           inventory.KindProcessing,
			ReferenceID:    fmt.Sprintf("seed-proc-%d-%s", storeID, date.Format("20060102")),
			IdempotencyKey: fmt.Sprintf("seed-%d-%s-processing", storeID, date.Format("20060102")),
			StaffID:        "seed",
			Lines: []inventory.BatchLine{
				{Key: live, QuantityKg: processed.Neg(), ReasonCode: inventory.ReasonProcessingDebit},
				{Key: skin, QuantityKg: processed, ReasonCode: inventory.ReasonProcessingCredit},
				{Key: skin, QuantityKg: wasted.Neg(), ReasonCode: inventory.ReasonWastage},
			},
		}); err != nil {
			return err
		}

		sold := yielded.Mul(decimal.NewFromFloat(0.6 + rng.Float64()*0.3)).Round(3)
		if _, err := guard.Commit(ctx, inventory.TransactionBatch{
			Kind:           inventory.KindSale,
			ReferenceID:    fmt.Sprintf("seed-sale-%d-%s", storeID, date.Format("20060102")),
			IdempotencyKey: fmt.Sprintf("seed-%d-%s-sale", storeID, date.Format("20060102")),
			StaffID:        "seed",
			Lines: []inventory.BatchLine{{
				Key:        skin,
				QuantityKg: sold.Neg(),
				ReasonCode: inventory.ReasonSaleDebit,
			}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func kg(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value).Round(3)
}

func parseConfig() config {
	var cfg config
	flag.StringVar(&cfg.dsn, "db", envOrDefault("DATABASE_URL", envOrDefault("PG_DSN", "")), "postgres dsn")
	flag.IntVar(&cfg.stores, "stores", 3, "number of stores to seed (ids 1..N)")
	flag.StringVar(&cfg.startDate, "start-date", time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02"), "first day to seed")
	flag.IntVar(&cfg.days, "days", 30, "number of days to seed")
	flag.Int64Var(&cfg.seed, "seed", 1, "rng seed for reproducible quantities")
	flag.Parse()
	return cfg
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
