package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	grading "poultry-core/internal/grading/domain"
)

const defaultSnapshotTable = "staff_monthly_performance"

// Repository is the Postgres snapshot store.
type Repository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithSnapshotTable overrides the default table.
func WithSnapshotTable(table string) RepositoryOption {
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
		table: defaultSnapshotTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Save upserts a snapshot by its identity.
func (r *Repository) Save(ctx context.Context, snapshot grading.PerformanceSnapshot) error {
	if r == nil || r.db == nil {
		return errors.New("grading repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, staff_id, month, total_points, weight_handled_kg, positive_variance_kg, negative_variance_kg,
                zero_variance_days, score, grade, bonus_amount, penalty_amount, net_incentive,
                config_version, locked, generated_at, locked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (staff_id, month) DO UPDATE SET
	total_points = EXCLUDED.total_points,
	weight_handled_kg = EXCLUDED.weight_handled_kg,
	positive_variance_kg = EXCLUDED.positive_variance_kg,
	negative_variance_kg = EXCLUDED.negative_variance_kg,
	zero_variance_days = EXCLUDED.zero_variance_days,
	score = EXCLUDED.score,
	grade = EXCLUDED.grade,
	bonus_amount = EXCLUDED.bonus_amount,
	penalty_amount = EXCLUDED.penalty_amount,
	net_incentive = EXCLUDED.net_incentive,
	config_version = EXCLUDED.config_version,
	locked = EXCLUDED.locked,
	generated_at = EXCLUDED.generated_at,
	locked_at = EXCLUDED.locked_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		snapshot.ID, snapshot.StaffID, snapshot.Month.UTC(),
		snapshot.TotalPoints.StringFixed(2), snapshot.WeightHandledKg.StringFixed(3),
		snapshot.PositiveVarianceKg.StringFixed(3), snapshot.NegativeVarianceKg.StringFixed(3),
		snapshot.ZeroVarianceDays, snapshot.Score.StringFixed(4), snapshot.Grade,
		snapshot.BonusAmount.StringFixed(2), snapshot.PenaltyAmount.StringFixed(2),
		snapshot.NetIncentive.StringFixed(2), snapshot.ConfigVersion, snapshot.Locked,
		snapshot.GeneratedAt.UTC(), nullIfZero(snapshot.LockedAt),
	)
	return err
}

// Get returns the snapshot of a staff month, nil when absent.
func (r *Repository) Get(ctx context.Context, staffID string, month time.Time) (*grading.PerformanceSnapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("grading repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE staff_id = $1 AND month = $2`, r.selectClause())
	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, staffID, month.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return snapshot, nil
}

// ListByMonth returns every snapshot of a month ordered by staff id.
func (r *Repository) ListByMonth(ctx context.Context, month time.Time) ([]grading.PerformanceSnapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("grading repo: nil db")
	}
	query := fmt.Sprintf(`%s WHERE month = $1 ORDER BY staff_id`, r.selectClause())
	rows, err := r.db.QueryContext(ctx, query, month.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grading.PerformanceSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snapshot)
	}
	return out, rows.Err()
}

func (r *Repository) selectClause() string {
	return fmt.Sprintf(`
SELECT id, staff_id, month, total_points, weight_handled_kg, positive_variance_kg, negative_variance_kg,
       zero_variance_days, score, grade, bonus_amount, penalty_amount, net_incentive,
       config_version, locked, generated_at, locked_at
FROM %s`, r.table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*grading.PerformanceSnapshot, error) {
	var snapshot grading.PerformanceSnapshot
	var totalPoints, weight, positive, negative, score, bonus, penalty, net string
	var lockedAt sql.NullTime
	if err := row.Scan(
		&snapshot.ID, &snapshot.StaffID, &snapshot.Month,
		&totalPoints, &weight, &positive, &negative,
		&snapshot.ZeroVarianceDays, &score, &snapshot.Grade,
		&bonus, &penalty, &net,
		&snapshot.ConfigVersion, &snapshot.Locked, &snapshot.GeneratedAt, &lockedAt,
	); err != nil {
		return nil, err
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&snapshot.TotalPoints, totalPoints},
		{&snapshot.WeightHandledKg, weight},
		{&snapshot.PositiveVarianceKg, positive},
		{&snapshot.NegativeVarianceKg, negative},
		{&snapshot.Score, score},
		{&snapshot.BonusAmount, bonus},
		{&snapshot.PenaltyAmount, penalty},
		{&snapshot.NetIncentive, net},
	}
	for _, field := range fields {
		value, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, err
		}
		*field.dst = value
	}
	if lockedAt.Valid {
		snapshot.LockedAt = lockedAt.Time.UTC()
	}
	return &snapshot, nil
}

func nullIfZero(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
