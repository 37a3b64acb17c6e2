// Command reconcile rebuilds daily movement reports straight from the ledger
// and verifies the movement identity closing - opening == net movement for
// every stock pool of a store over a date range. Violations land in a CSV so
// operations can chase the offending day.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	invapp "poultry-core/internal/inventory/application"
	inventory "poultry-core/internal/inventory/domain"
	invpg "poultry-core/internal/inventory/infrastructure/postgres"
)

type config struct {
	dsn     string
	storeID int
	from    string
	to      string
	outDir  string
}

func main() {
	cfg := parseFlags()
	if cfg.dsn == "" {
		fmt.Fprintln(os.Stderr, "PG_DSN or DATABASE_URL is required")
		os.Exit(2)
	}
	if cfg.storeID <= 0 {
		fmt.Fprintln(os.Stderr, "store must be > 0")
		os.Exit(2)
	}
	from, to, err := parseRange(cfg.from, cfg.to)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	ledger := invpg.NewLedgerRepository(db)
	balances, err := invapp.NewBalanceService(ledger, ledger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "balance service:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	var reports []inventory.MovementReport
	var violations []inventory.MovementReport
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayReports, err := balances.StoreMovementReport(ctx, cfg.storeID, day)
		if err != nil {
			fmt.Fprintln(os.Stderr, "movement report:", err)
			os.Exit(2)
		}
		for _, report := range dayReports {
			reports = append(reports, report)
			if !report.Balanced() {
				violations = append(violations, report)
			}
		}
	}

	if err := writeMovement(filepath.Join(cfg.outDir, "movement.csv"), reports); err != nil {
		fmt.Fprintln(os.Stderr, "write movement:", err)
		os.Exit(2)
	}
	if err := writeMovement(filepath.Join(cfg.outDir, "violations.csv"), violations); err != nil {
		fmt.Fprintln(os.Stderr, "write violations:", err)
		os.Exit(2)
	}

	fmt.Printf("checked %d pool-days, %d violations, outputs in %s\n", len(reports), len(violations), cfg.outDir)
	if len(violations) > 0 {
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.dsn, "db", envOrDefault("DATABASE_URL", envOrDefault("PG_DSN", "")), "postgres dsn")
	flag.IntVar(&cfg.storeID, "store", 0, "store id to reconcile")
	flag.StringVar(&cfg.from, "from", "", "first date, YYYY-MM-DD (default: 7 days ago)")
	flag.StringVar(&cfg.to, "to", "", "last date, YYYY-MM-DD inclusive (default: yesterday)")
	flag.StringVar(&cfg.outDir, "out", "reconcile-out", "output directory")
	flag.Parse()
	return cfg
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	today := invapp.DayStart(time.Now())
	from := today.AddDate(0, 0, -7)
	to := today.AddDate(0, 0, -1)
	var err error
	if fromRaw != "" {
		from, err = time.Parse("2006-01-02", fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
	}
	if toRaw != "" {
		to, err = time.Parse("2006-01-02", toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to %s is before from %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return invapp.DayStart(from), invapp.DayStart(to), nil
}

func writeMovement(path string, rows []inventory.MovementReport) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"date", "store_id", "bird_type", "inventory_type",
		"opening", "purchases", "processing_in", "processing_out",
		"sales", "transfers_in", "transfers_out", "wastage", "adjustments",
		"closing", "net_movement", "balanced",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Date.Format("2006-01-02"),
			fmt.Sprintf("%d", r.Key.StoreID),
			string(r.Key.BirdType),
			string(r.Key.InventoryType),
			r.Opening.StringFixed(3),
			r.Purchases.StringFixed(3),
			r.ProcessingIn.StringFixed(3),
			r.ProcessingOut.StringFixed(3),
			r.Sales.StringFixed(3),
			r.TransfersIn.StringFixed(3),
			r.TransfersOut.StringFixed(3),
			r.Wastage.StringFixed(3),
			r.Adjustments.StringFixed(3),
			r.Closing.StringFixed(3),
			r.NetMovement().StringFixed(3),
			fmt.Sprintf("%t", r.Balanced()),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
