package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	grading "poultry-core/internal/grading/domain"
	"poultry-core/internal/observability/metrics"
	points "poultry-core/internal/points/domain"
)

// EntrySource supplies the point entries a snapshot is computed from.
type EntrySource interface {
	ListByStaffBetween(ctx context.Context, staffID string, from, to time.Time) ([]points.PointEntry, error)
}

// Service computes and stores monthly performance snapshots. Generation for
// the same (staff, month) pair is serialized so regeneration races cannot
// interleave aggregate and save.
type Service struct {
	repo    grading.Repository
	entries EntrySource
	cfg     Config
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a grading service.
func NewService(repo grading.Repository, entries EntrySource, cfg Config, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("grading service: nil repo")
	}
	if entries == nil {
		return nil, errors.New("grading service: nil entry source")
	}
	service := &Service{
		repo:    repo,
		entries: entries,
		cfg:     cfg,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Generate computes the snapshot for a staff month and stores it. Repeated
// calls overwrite the stored row deterministically until it is locked.
func (s *Service) Generate(ctx context.Context, staffID string, month time.Time) (*grading.PerformanceSnapshot, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveGradingGenerate(result, time.Since(start))
	}()

	if staffID == "" {
		result = metrics.ResultError
		return nil, grading.ErrMissingStaff
	}
	monthStart := grading.MonthStart(month)

	unlock := s.lockKey(staffID, monthStart)
	defer unlock()

	existing, err := s.repo.Get(ctx, staffID, monthStart)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if existing != nil && existing.Locked {
		result = metrics.ResultError
		return nil, grading.ErrSnapshotLocked
	}

	snapshot, err := s.compute(ctx, staffID, monthStart)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Save(ctx, *snapshot); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return snapshot, nil
}

// Lock finalizes a snapshot. A locked snapshot cannot be locked again.
func (s *Service) Lock(ctx context.Context, staffID string, month time.Time) (*grading.PerformanceSnapshot, error) {
	monthStart := grading.MonthStart(month)

	unlock := s.lockKey(staffID, monthStart)
	defer unlock()

	snapshot, err := s.repo.Get(ctx, staffID, monthStart)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, grading.ErrSnapshotNotFound
	}
	if snapshot.Locked {
		return nil, grading.ErrSnapshotLocked
	}
	snapshot.Locked = true
	snapshot.LockedAt = s.now().UTC()
	if err := s.repo.Save(ctx, *snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Get returns the stored snapshot for a staff month.
func (s *Service) Get(ctx context.Context, staffID string, month time.Time) (*grading.PerformanceSnapshot, error) {
	snapshot, err := s.repo.Get(ctx, staffID, grading.MonthStart(month))
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, grading.ErrSnapshotNotFound
	}
	return snapshot, nil
}

// ListByMonth returns every stored snapshot of a month.
func (s *Service) ListByMonth(ctx context.Context, month time.Time) ([]grading.PerformanceSnapshot, error) {
	return s.repo.ListByMonth(ctx, grading.MonthStart(month))
}

func (s *Service) compute(ctx context.Context, staffID string, monthStart time.Time) (*grading.PerformanceSnapshot, error) {
	entries, err := s.entries.ListByStaffBetween(ctx, staffID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	snapshot := &grading.PerformanceSnapshot{
		ID:                 grading.BuildSnapshotID(staffID, monthStart),
		StaffID:            staffID,
		Month:              monthStart,
		TotalPoints:        decimal.Zero,
		WeightHandledKg:    decimal.Zero,
		PositiveVarianceKg: decimal.Zero,
		NegativeVarianceKg: decimal.Zero,
		Score:              decimal.Zero,
		BonusAmount:        decimal.Zero,
		PenaltyAmount:      decimal.Zero,
		NetIncentive:       decimal.Zero,
		ConfigVersion:      s.cfg.Version,
		GeneratedAt:        s.now().UTC(),
	}
	for _, entry := range entries {
		snapshot.TotalPoints = snapshot.TotalPoints.Add(entry.PointsChange)
		snapshot.WeightHandledKg = snapshot.WeightHandledKg.Add(entry.WeightHandledKg)
		switch entry.Reason {
		case points.ReasonPositiveVariance:
			snapshot.PositiveVarianceKg = snapshot.PositiveVarianceKg.Add(entry.VarianceKg)
		case points.ReasonNegativeVariance:
			snapshot.NegativeVarianceKg = snapshot.NegativeVarianceKg.Add(entry.VarianceKg)
		case points.ReasonZeroVariance:
			snapshot.ZeroVarianceDays++
		}
	}

	// A month with no handled weight grades C with no money attached.
	if snapshot.WeightHandledKg.IsZero() {
		snapshot.Grade = grading.GradeC
		return snapshot, nil
	}

	snapshot.Score = snapshot.TotalPoints.DivRound(snapshot.WeightHandledKg, 4)
	snapshot.Grade = grading.GradeForScore(snapshot.Score, s.cfg.DomainThresholds())

	bonus := s.cfg.BonusRate(snapshot.Grade).Mul(snapshot.WeightHandledKg).Round(2)
	if limit := decimal.NewFromFloat(s.cfg.BonusCap); bonus.GreaterThan(limit) {
		bonus = limit
	}
	penalty := s.cfg.PenaltyRate(snapshot.Grade).Mul(snapshot.NegativeVarianceKg).Round(2)
	if limit := decimal.NewFromFloat(s.cfg.PenaltyCap); penalty.GreaterThan(limit) {
		penalty = limit
	}
	snapshot.BonusAmount = bonus
	snapshot.PenaltyAmount = penalty
	snapshot.NetIncentive = bonus.Sub(penalty)
	return snapshot, nil
}

func (s *Service) lockKey(staffID string, monthStart time.Time) func() {
	key := staffID + "|" + monthStart.Format("200601")
	s.mu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}
