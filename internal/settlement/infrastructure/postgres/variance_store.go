package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	settlement "poultry-core/internal/settlement/domain"
)

// VarianceStore is the Postgres variance record store.
type VarianceStore struct {
	db    *sql.DB
	table string
}

// VarianceStoreOption configures the store.
type VarianceStoreOption func(*VarianceStore)

// WithVarianceTable overrides the default table.
func WithVarianceTable(table string) VarianceStoreOption {
	return func(store *VarianceStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewVarianceStore constructs a store with defaults.
func NewVarianceStore(db *sql.DB, opts ...VarianceStoreOption) *VarianceStore {
	store := &VarianceStore{
		db:    db,
		table: defaultVarianceTable,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SaveAll upserts records by id.
func (v *VarianceStore) SaveAll(ctx context.Context, records []settlement.VarianceRecord) error {
	if v == nil || v.db == nil {
		return errors.New("variance store: nil db")
	}
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, settlement_id, store_id, bird_type, inventory_type, variance_type,
                expected_kg, declared_kg, variance_kg, status, resolved_by, resolved_at, ledger_entry_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, NULLIF($13, ''), $14)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	resolved_by = EXCLUDED.resolved_by,
	resolved_at = EXCLUDED.resolved_at,
	ledger_entry_id = EXCLUDED.ledger_entry_id`, v.table)

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, record := range records {
		if _, err := tx.ExecContext(ctx, query,
			record.ID, record.SettlementID, record.StoreID, record.BirdType, record.InventoryType,
			record.VarianceType, record.ExpectedKg.StringFixed(3), record.DeclaredKg.StringFixed(3),
			record.VarianceKg.StringFixed(3), record.Status, record.ResolvedBy,
			nullIfZero(record.ResolvedAt), record.LedgerEntryID, record.CreatedAt.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBySettlement returns records of one settlement in a stable order.
func (v *VarianceStore) ListBySettlement(ctx context.Context, settlementID string) ([]settlement.VarianceRecord, error) {
	if v == nil || v.db == nil {
		return nil, errors.New("variance store: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, settlement_id, store_id, bird_type, inventory_type, variance_type,
       expected_kg, declared_kg, variance_kg, status, COALESCE(resolved_by, ''), resolved_at, COALESCE(ledger_entry_id, ''), created_at
FROM %s
WHERE settlement_id = $1
ORDER BY id`, v.table)

	rows, err := v.db.QueryContext(ctx, query, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.VarianceRecord
	for rows.Next() {
		var record settlement.VarianceRecord
		var expected, declared, variance string
		var resolvedAt sql.NullTime
		if err := rows.Scan(
			&record.ID, &record.SettlementID, &record.StoreID, &record.BirdType, &record.InventoryType,
			&record.VarianceType, &expected, &declared, &variance, &record.Status,
			&record.ResolvedBy, &resolvedAt, &record.LedgerEntryID, &record.CreatedAt,
		); err != nil {
			return nil, err
		}
		if record.ExpectedKg, err = decimal.NewFromString(expected); err != nil {
			return nil, err
		}
		if record.DeclaredKg, err = decimal.NewFromString(declared); err != nil {
			return nil, err
		}
		if record.VarianceKg, err = decimal.NewFromString(variance); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			record.ResolvedAt = resolvedAt.Time.UTC()
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Resolve marks a record with its resolution outcome.
func (v *VarianceStore) Resolve(ctx context.Context, id string, status settlement.ResolutionStatus, resolvedBy, ledgerEntryID string, at time.Time) error {
	if v == nil || v.db == nil {
		return errors.New("variance store: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	resolved_by = NULLIF($3, ''),
	resolved_at = $4,
	ledger_entry_id = COALESCE(NULLIF($5, ''), ledger_entry_id)
WHERE id = $1`, v.table)

	res, err := v.db.ExecContext(ctx, query, id, status, resolvedBy, at.UTC(), ledgerEntryID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrNotFound
	}
	return nil
}
