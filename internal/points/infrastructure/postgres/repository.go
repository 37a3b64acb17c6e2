package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	points "poultry-core/internal/points/domain"
)

const defaultEntryTable = "point_entries"

// Repository is the Postgres point entry store. The table carries a unique
// index on (staff_id, reference_id, reason) which backs idempotent writes.
type Repository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithEntryTable overrides the entry table.
func WithEntryTable(table string) RepositoryOption {
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
		table: defaultEntryTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Save inserts an entry, reporting DuplicateEntryError when the uniqueness
// triple was already recorded.
func (r *Repository) Save(ctx context.Context, entry points.PointEntry) error {
	if r == nil || r.db == nil {
		return errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, staff_id, store_id, reason, category, points_change, weight_handled_kg, variance_kg, reference_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
ON CONFLICT (staff_id, reference_id, reason) DO NOTHING`, r.table)

	res, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.StaffID, entry.StoreID, entry.Reason, entry.Category,
		entry.PointsChange.StringFixed(2), entry.WeightHandledKg.StringFixed(3),
		entry.VarianceKg.StringFixed(3), entry.ReferenceID, entry.Note, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &points.DuplicateEntryError{
			StaffID:     entry.StaffID,
			ReferenceID: entry.ReferenceID,
			Reason:      entry.Reason,
		}
	}
	return nil
}

// GetByID returns one entry, ErrEntryNotFound when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*points.PointEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, staff_id, store_id, reason, category, points_change, weight_handled_kg, variance_kg, reference_id, COALESCE(note, ''), created_at
FROM %s WHERE id = $1`, r.table)
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, points.ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListByStaff returns the newest entries of a staff member.
func (r *Repository) ListByStaff(ctx context.Context, staffID string, limit int) ([]points.PointEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, staff_id, store_id, reason, category, points_change, weight_handled_kg, variance_kg, reference_id, COALESCE(note, ''), created_at
FROM %s
WHERE staff_id = $1
ORDER BY created_at DESC, id
LIMIT $2`, r.table)
	return r.queryEntries(ctx, query, staffID, limit)
}

// ListByStaffSince returns entries with a reason at or after since.
func (r *Repository) ListByStaffSince(ctx context.Context, staffID string, reason points.ReasonCode, since time.Time) ([]points.PointEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, staff_id, store_id, reason, category, points_change, weight_handled_kg, variance_kg, reference_id, COALESCE(note, ''), created_at
FROM %s
WHERE staff_id = $1 AND reason = $2 AND created_at >= $3
ORDER BY created_at, id`, r.table)
	return r.queryEntries(ctx, query, staffID, reason, since.UTC())
}

// ListByStaffBetween returns entries in the half-open window [from, to).
func (r *Repository) ListByStaffBetween(ctx context.Context, staffID string, from, to time.Time) ([]points.PointEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, staff_id, store_id, reason, category, points_change, weight_handled_kg, variance_kg, reference_id, COALESCE(note, ''), created_at
FROM %s
WHERE staff_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at, id`, r.table)
	return r.queryEntries(ctx, query, staffID, from.UTC(), to.UTC())
}

// Summary aggregates one staff member's entries.
func (r *Repository) Summary(ctx context.Context, staffID string) (points.StaffSummary, error) {
	summary := points.StaffSummary{StaffID: staffID, Balance: decimal.Zero}
	if r == nil || r.db == nil {
		return summary, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COALESCE(SUM(points_change), 0),
       COUNT(*),
       COUNT(*) FILTER (WHERE category = $2),
       COALESCE(MAX(created_at), 'epoch'::timestamptz)
FROM %s WHERE staff_id = $1`, r.table)

	var balance string
	if err := r.db.QueryRowContext(ctx, query, staffID, points.CategoryFraud).Scan(
		&balance, &summary.EntryCount, &summary.FraudEntries, &summary.LastEntryAt,
	); err != nil {
		return summary, err
	}
	total, err := decimal.NewFromString(balance)
	if err != nil {
		return summary, err
	}
	summary.Balance = total
	return summary, nil
}

// Leaderboard ranks staff of a store by balance, highest first. storeID 0
// spans all stores.
func (r *Repository) Leaderboard(ctx context.Context, storeID, limit int) ([]points.StaffSummary, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("points repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT staff_id,
       COALESCE(SUM(points_change), 0),
       COUNT(*),
       COUNT(*) FILTER (WHERE category = $3),
       MAX(created_at)
FROM %s
WHERE $1 = 0 OR store_id = $1
GROUP BY staff_id
ORDER BY SUM(points_change) DESC, staff_id
LIMIT $2`, r.table)

	rows, err := r.db.QueryContext(ctx, query, storeID, limit, points.CategoryFraud)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []points.StaffSummary
	for rows.Next() {
		var summary points.StaffSummary
		var balance string
		if err := rows.Scan(&summary.StaffID, &balance, &summary.EntryCount, &summary.FraudEntries, &summary.LastEntryAt); err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, err
		}
		summary.Balance = total
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]points.PointEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []points.PointEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*points.PointEntry, error) {
	var entry points.PointEntry
	var change, weight, variance string
	if err := row.Scan(
		&entry.ID, &entry.StaffID, &entry.StoreID, &entry.Reason, &entry.Category,
		&change, &weight, &variance, &entry.ReferenceID, &entry.Note, &entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if entry.PointsChange, err = decimal.NewFromString(change); err != nil {
		return nil, err
	}
	if entry.WeightHandledKg, err = decimal.NewFromString(weight); err != nil {
		return nil, err
	}
	if entry.VarianceKg, err = decimal.NewFromString(variance); err != nil {
		return nil, err
	}
	return &entry, nil
}
