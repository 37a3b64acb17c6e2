package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	settlement "poultry-core/internal/settlement/domain"
)

const (
	defaultSettlementTable = "settlements"
	defaultVarianceTable   = "variance_logs"
)

// Repository is the Postgres settlement store. Writes after creation go
// through UpdateCAS, which guards on the version column.
type Repository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *Repository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewRepository constructs a repository with defaults.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		db:    db,
		table: defaultSettlementTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Create inserts a new settlement row.
func (r *Repository) Create(ctx context.Context, s *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return settlement.ErrNilSettlement
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, store_id, settle_date, status, declared_cash, expected_cash, cash_variance, expense_amount,
                items, submitted_by, submitted_at, approved_by, approved_at, locked_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, NULLIF($12, ''), $13, $14, $15, $16, $17)
ON CONFLICT (store_id, settle_date) DO NOTHING`, r.table)

	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.StoreID, s.Date.UTC(), s.Status,
		s.DeclaredCash.StringFixed(2), s.ExpectedCash.StringFixed(2),
		s.CashVariance.StringFixed(2), s.ExpenseAmount.StringFixed(2),
		items, s.SubmittedBy, nullIfZero(s.SubmittedAt), s.ApprovedBy, nullIfZero(s.ApprovedAt),
		nullIfZero(s.LockedAt), s.Version, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrAlreadyExists
	}
	return nil
}

// GetByID loads one settlement, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE id = $1`, r.selectClause())
	return scanSettlement(r.db.QueryRowContext(ctx, query, id))
}

// FindByStoreAndDate loads the settlement for a store day, nil when absent.
func (r *Repository) FindByStoreAndDate(ctx context.Context, storeID int, date time.Time) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE store_id = $1 AND settle_date = $2`, r.selectClause())
	return scanSettlement(r.db.QueryRowContext(ctx, query, storeID, date.UTC()))
}

// UpdateCAS writes the settlement back guarded on the version column. A
// zero-row update means the version moved underneath the caller.
func (r *Repository) UpdateCAS(ctx context.Context, s *settlement.Settlement, expectedVersion int) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return settlement.ErrNilSettlement
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $3,
	declared_cash = $4,
	expected_cash = $5,
	cash_variance = $6,
	expense_amount = $7,
	items = $8,
	submitted_by = NULLIF($9, ''),
	submitted_at = $10,
	approved_by = NULLIF($11, ''),
	approved_at = $12,
	locked_at = $13,
	version = version + 1,
	updated_at = $14
WHERE id = $1 AND version = $2`, r.table)

	res, err := r.db.ExecContext(ctx, query,
		s.ID, expectedVersion, s.Status,
		s.DeclaredCash.StringFixed(2), s.ExpectedCash.StringFixed(2),
		s.CashVariance.StringFixed(2), s.ExpenseAmount.StringFixed(2),
		items, s.SubmittedBy, nullIfZero(s.SubmittedAt), s.ApprovedBy, nullIfZero(s.ApprovedAt),
		nullIfZero(s.LockedAt), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		current, err := r.currentVersion(ctx, s.ID)
		if err != nil {
			return err
		}
		return &settlement.ConcurrentModificationError{ID: s.ID, ExpectedVersion: expectedVersion, ActualVersion: current}
	}
	s.Version = expectedVersion + 1
	return nil
}

// ListByStore returns a store's settlements, newest date first.
func (r *Repository) ListByStore(ctx context.Context, storeID, limit int) ([]*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE store_id = $1 ORDER BY settle_date DESC LIMIT $2`, r.selectClause())
	return r.querySettlements(ctx, query, storeID, limit)
}

// ListStaleDrafts returns drafts dated strictly before cutoff.
func (r *Repository) ListStaleDrafts(ctx context.Context, cutoff time.Time) ([]*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE status = $1 AND settle_date < $2 ORDER BY settle_date`, r.selectClause())
	return r.querySettlements(ctx, query, settlement.StatusDraft, cutoff.UTC())
}

func (r *Repository) selectClause() string {
	return fmt.Sprintf(`
SELECT id, store_id, settle_date, status, declared_cash, expected_cash, cash_variance, expense_amount,
       items, COALESCE(submitted_by, ''), submitted_at, COALESCE(approved_by, ''), approved_at, locked_at,
       version, created_at, updated_at
FROM %s`, r.table)
}

func (r *Repository) querySettlements(ctx context.Context, query string, args ...any) ([]*settlement.Settlement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*settlement.Settlement
	for rows.Next() {
		s, err := scanSettlementRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) currentVersion(ctx context.Context, id string) (int, error) {
	query := fmt.Sprintf(`SELECT version FROM %s WHERE id = $1`, r.table)
	var version int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, settlement.ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row *sql.Row) (*settlement.Settlement, error) {
	s, err := scanSettlementRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSettlementRow(row rowScanner) (*settlement.Settlement, error) {
	var s settlement.Settlement
	var declared, expected, variance, expense string
	var items []byte
	var submittedAt, approvedAt, lockedAt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.StoreID, &s.Date, &s.Status,
		&declared, &expected, &variance, &expense,
		&items, &s.SubmittedBy, &submittedAt, &s.ApprovedBy, &approvedAt, &lockedAt,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if s.DeclaredCash, err = decimalFromString(declared); err != nil {
		return nil, err
	}
	if s.ExpectedCash, err = decimalFromString(expected); err != nil {
		return nil, err
	}
	if s.CashVariance, err = decimalFromString(variance); err != nil {
		return nil, err
	}
	if s.ExpenseAmount, err = decimalFromString(expense); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &s.Items); err != nil {
			return nil, err
		}
	}
	if submittedAt.Valid {
		s.SubmittedAt = submittedAt.Time.UTC()
	}
	if approvedAt.Valid {
		s.ApprovedAt = approvedAt.Time.UTC()
	}
	if lockedAt.Valid {
		s.LockedAt = lockedAt.Time.UTC()
	}
	return &s, nil
}

func decimalFromString(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func nullIfZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
