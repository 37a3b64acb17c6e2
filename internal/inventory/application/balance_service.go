package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/observability/metrics"
)

// BalanceService is the read side of the ledger: balances, snapshots and
// daily movement reports.
type BalanceService struct {
	repo      inventory.LedgerRepository
	snapshots inventory.SnapshotStore
	now       func() time.Time
}

// NewBalanceService constructs a service. The snapshot store may be nil, in
// which case every balance is computed from the full ledger.
func NewBalanceService(repo inventory.LedgerRepository, snapshots inventory.SnapshotStore) (*BalanceService, error) {
	if repo == nil {
		return nil, errors.New("balance service: nil repo")
	}
	return &BalanceService{repo: repo, snapshots: snapshots, now: time.Now}, nil
}

// CurrentBalance returns the present balance of a stock key.
func (s *BalanceService) CurrentBalance(ctx context.Context, key inventory.StockKey) (decimal.Decimal, error) {
	return s.BalanceAsOf(ctx, key, time.Time{})
}

// BalanceAsOf returns the balance from entries strictly before asOf. A zero
// asOf means all entries. Snapshots short-circuit the replay when available.
func (s *BalanceService) BalanceAsOf(ctx context.Context, key inventory.StockKey, asOf time.Time) (decimal.Decimal, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBalanceQuery("balance", result, time.Since(start))
	}()

	if _, err := inventory.NewStockKey(key.StoreID, key.BirdType, key.InventoryType); err != nil {
		result = metrics.ResultError
		return decimal.Zero, err
	}

	base := decimal.Zero
	after := time.Time{}
	if s.snapshots != nil {
		snap, err := s.snapshots.LatestBefore(ctx, key, asOf)
		if err != nil {
			result = metrics.ResultError
			return decimal.Zero, err
		}
		if snap != nil {
			base = snap.BalanceKg
			after = snap.CutoffAt
		}
	}
	tail, err := s.repo.SumForKey(ctx, key, after, asOf)
	if err != nil {
		result = metrics.ResultError
		return decimal.Zero, err
	}
	return base.Add(tail), nil
}

// TakeSnapshot records the balance of a key as of end-of-day. Re-running for
// the same (key, date) overwrites rather than double-counts.
func (s *BalanceService) TakeSnapshot(ctx context.Context, key inventory.StockKey, date time.Time) (inventory.BalanceSnapshot, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBalanceQuery("snapshot", result, time.Since(start))
	}()

	if s.snapshots == nil {
		result = metrics.ResultError
		return inventory.BalanceSnapshot{}, errors.New("balance service: no snapshot store configured")
	}
	dayStart := DayStart(date)
	cutoff := dayStart.Add(24 * time.Hour)
	balance, err := s.repo.SumForKey(ctx, key, time.Time{}, cutoff)
	if err != nil {
		result = metrics.ResultError
		return inventory.BalanceSnapshot{}, err
	}
	snapshot := inventory.BalanceSnapshot{
		Key:       key,
		Date:      dayStart,
		BalanceKg: balance,
		CutoffAt:  cutoff,
		TakenAt:   s.now().UTC(),
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		result = metrics.ResultError
		return inventory.BalanceSnapshot{}, err
	}
	return snapshot, nil
}

// MovementReport builds the signed movement of one key over one day.
func (s *BalanceService) MovementReport(ctx context.Context, key inventory.StockKey, date time.Time) (inventory.MovementReport, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBalanceQuery("movement_report", result, time.Since(start))
	}()

	dayStart := DayStart(date)
	dayEnd := dayStart.Add(24 * time.Hour)

	opening, err := s.BalanceAsOf(ctx, key, dayStart)
	if err != nil {
		result = metrics.ResultError
		return inventory.MovementReport{}, err
	}
	closing, err := s.BalanceAsOf(ctx, key, dayEnd)
	if err != nil {
		result = metrics.ResultError
		return inventory.MovementReport{}, err
	}
	entries, err := s.repo.ListForStoreDay(ctx, key.StoreID, dayStart)
	if err != nil {
		result = metrics.ResultError
		return inventory.MovementReport{}, err
	}

	report := inventory.MovementReport{Key: key, Date: dayStart, Opening: opening, Closing: closing}
	for _, entry := range entries {
		if entry.Key() != key {
			continue
		}
		report.Accumulate(entry)
	}
	return report, nil
}

// StoreMovementReport builds reports for every stock pool of a store.
func (s *BalanceService) StoreMovementReport(ctx context.Context, storeID int, date time.Time) ([]inventory.MovementReport, error) {
	birdTypes := []inventory.BirdType{inventory.BirdBroiler, inventory.BirdParentCull}
	invTypes := []inventory.InventoryType{inventory.InvLive, inventory.InvSkin, inventory.InvSkinless}

	reports := make([]inventory.MovementReport, 0, len(birdTypes)*len(invTypes))
	for _, bird := range birdTypes {
		for _, inv := range invTypes {
			key, err := inventory.NewStockKey(storeID, bird, inv)
			if err != nil {
				return nil, err
			}
			report, err := s.MovementReport(ctx, key, date)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
	}
	return reports, nil
}

// DayStart truncates a time to its UTC day boundary.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
