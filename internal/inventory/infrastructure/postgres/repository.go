package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
)

const (
	defaultLedgerTable      = "inventory_ledger"
	defaultTransactionTable = "stock_transactions"
	defaultSnapshotTable    = "balance_snapshots"
)

// LedgerRepository is the Postgres ledger store. It also serves as the
// commit log for idempotency replays and the balance snapshot store.
type LedgerRepository struct {
	db          *sql.DB
	ledgerTable string
	txnTable    string
	snapTable   string
}

// NewLedgerRepository constructs a repository with defaults.
func NewLedgerRepository(db *sql.DB, opts ...RepositoryOption) *LedgerRepository {
	repo := &LedgerRepository{
		db:          db,
		ledgerTable: defaultLedgerTable,
		txnTable:    defaultTransactionTable,
		snapTable:   defaultSnapshotTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*LedgerRepository)

// WithLedgerTable overrides the ledger table.
func WithLedgerTable(table string) RepositoryOption {
	return func(repo *LedgerRepository) {
		if table != "" {
			repo.ledgerTable = table
		}
	}
}

// WithTransactionTable overrides the transaction table.
func WithTransactionTable(table string) RepositoryOption {
	return func(repo *LedgerRepository) {
		if table != "" {
			repo.txnTable = table
		}
	}
}

// WithSnapshotTable overrides the snapshot table.
func WithSnapshotTable(table string) RepositoryOption {
	return func(repo *LedgerRepository) {
		if table != "" {
			repo.snapTable = table
		}
	}
}

// AppendCommit writes the transaction record, its ledger entries and the
// durable result in one database transaction. The transaction table carries a
// unique index on idempotency_key; a violation means another process already
// committed the key and is reported as ErrDuplicateCommit so the caller can
// replay the stored result.
func (r *LedgerRepository) AppendCommit(ctx context.Context, txn inventory.StockTransaction, entries []inventory.LedgerEntry, result inventory.TransactionResult) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	if len(entries) == 0 {
		return inventory.ErrEmptyBatch
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	txnQuery := fmt.Sprintf(`
INSERT INTO %s (id, kind, reference_id, idempotency_key, staff_id, result, committed_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)`, r.txnTable)
	if _, err := tx.ExecContext(ctx, txnQuery,
		txn.ID, txn.Kind, txn.ReferenceID, txn.IdempotencyKey, txn.StaffID, resultJSON, txn.CommittedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return inventory.ErrDuplicateCommit
		}
		return err
	}

	entryQuery := fmt.Sprintf(`
INSERT INTO %s (id, store_id, bird_type, inventory_type, quantity_kg, bird_count_change, reason_code, reference_id, transaction_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, r.ledgerTable)
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, entryQuery,
			entry.ID, entry.StoreID, entry.BirdType, entry.InventoryType,
			entry.QuantityKg.StringFixed(3), entry.BirdCountChange,
			entry.ReasonCode, entry.ReferenceID, txn.ID, entry.CreatedAt.UTC(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FindResult loads the stored result for an idempotency key, nil if unseen.
func (r *LedgerRepository) FindResult(ctx context.Context, idempotencyKey string) (*inventory.TransactionResult, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	if idempotencyKey == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT result FROM %s WHERE idempotency_key = $1 LIMIT 1`, r.txnTable)
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, idempotencyKey).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var result inventory.TransactionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SumForKey sums deltas over the half-open window [after, until).
func (r *LedgerRepository) SumForKey(ctx context.Context, key inventory.StockKey, after, until time.Time) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Zero, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COALESCE(SUM(quantity_kg), 0)
FROM %s
WHERE store_id = $1 AND bird_type = $2 AND inventory_type = $3
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at < $5)`, r.ledgerTable)

	var sumStr string
	if err := r.db.QueryRowContext(ctx, query,
		key.StoreID, key.BirdType, key.InventoryType, nullTime(after), nullTime(until),
	).Scan(&sumStr); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sumStr)
}

// ListForStoreDay returns all entries for the store within the UTC day.
func (r *LedgerRepository) ListForStoreDay(ctx context.Context, storeID int, dayStart time.Time) ([]inventory.LedgerEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, store_id, bird_type, inventory_type, quantity_kg, bird_count_change, reason_code, COALESCE(reference_id, ''), created_at
FROM %s
WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id`, r.ledgerTable)

	dayEnd := dayStart.Add(24 * time.Hour)
	rows, err := r.db.QueryContext(ctx, query, storeID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.LedgerEntry
	for rows.Next() {
		var entry inventory.LedgerEntry
		var quantity string
		if err := rows.Scan(
			&entry.ID, &entry.StoreID, &entry.BirdType, &entry.InventoryType,
			&quantity, &entry.BirdCountChange, &entry.ReasonCode, &entry.ReferenceID, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, err
		}
		entry.QuantityKg = qty
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Save upserts a snapshot for (key, date).
func (r *LedgerRepository) Save(ctx context.Context, snapshot inventory.BalanceSnapshot) error {
	if r == nil || r.db == nil {
		return errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (store_id, bird_type, inventory_type, snapshot_date, balance_kg, cutoff_at, taken_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (store_id, bird_type, inventory_type, snapshot_date)
DO UPDATE SET
	balance_kg = EXCLUDED.balance_kg,
	cutoff_at = EXCLUDED.cutoff_at,
	taken_at = EXCLUDED.taken_at`, r.snapTable)

	_, err := r.db.ExecContext(ctx, query,
		snapshot.Key.StoreID, snapshot.Key.BirdType, snapshot.Key.InventoryType,
		snapshot.Date.UTC(), snapshot.BalanceKg.StringFixed(3),
		snapshot.CutoffAt.UTC(), snapshot.TakenAt.UTC(),
	)
	return err
}

// LatestBefore loads the newest snapshot with cutoff at or before asOf.
func (r *LedgerRepository) LatestBefore(ctx context.Context, key inventory.StockKey, asOf time.Time) (*inventory.BalanceSnapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ledger repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT snapshot_date, balance_kg, cutoff_at, taken_at
FROM %s
WHERE store_id = $1 AND bird_type = $2 AND inventory_type = $3
  AND ($4::timestamptz IS NULL OR cutoff_at <= $4)
ORDER BY cutoff_at DESC
LIMIT 1`, r.snapTable)

	var snap inventory.BalanceSnapshot
	var balance string
	err := r.db.QueryRowContext(ctx, query,
		key.StoreID, key.BirdType, key.InventoryType, nullTime(asOf),
	).Scan(&snap.Date, &balance, &snap.CutoffAt, &snap.TakenAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	value, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	snap.Key = key
	snap.BalanceKg = value
	return &snap, nil
}

// isUniqueViolation reports SQLSTATE 23505, unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
