package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"poultry-core/internal/observability/metrics"
	points "poultry-core/internal/points/domain"
)

// consecutiveNegativeDays is how many negative-variance days in a row
// trigger the extra discipline penalty.
const consecutiveNegativeDays = 3

// SuspendNotifier delivers auto-suspend signals to the outside world.
type SuspendNotifier interface {
	NotifyAutoSuspend(ctx context.Context, signal points.AutoSuspendSignal) error
}

// Service applies the point rules on top of the entry store: idempotent
// recording, the consecutive-shortage penalty, and the suspension threshold.
type Service struct {
	repo      points.Repository
	notifier  SuspendNotifier
	threshold decimal.Decimal
	logger    *log.Logger
	now       func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithSuspendThreshold overrides the default suspension threshold of -200.
func WithSuspendThreshold(threshold decimal.Decimal) ServiceOption {
	return func(s *Service) {
		s.threshold = threshold
	}
}

// WithNotifier wires the auto-suspend delivery channel.
func WithNotifier(notifier SuspendNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithLogger sets the logger used for signal delivery failures.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a points service.
func NewService(repo points.Repository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("points service: nil repo")
	}
	service := &Service{
		repo:      repo,
		threshold: decimal.NewFromInt(-200),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RecordInput describes one table-driven point event.
type RecordInput struct {
	StaffID         string
	StoreID         int
	Reason          points.ReasonCode
	ReferenceID     string
	WeightHandledKg decimal.Decimal
	VarianceKg      decimal.Decimal
}

// Record writes a point entry. Replays of the same (staff, reference,
// reason) triple return the stored entry without re-running side effects.
func (s *Service) Record(ctx context.Context, input RecordInput) (*points.PointEntry, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePointsRecord(result, time.Since(start))
	}()

	entry, err := points.NewPointEntry(input.StaffID, input.StoreID, input.Reason, input.ReferenceID, input.WeightHandledKg, input.VarianceKg, s.now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		if points.IsDuplicate(err) {
			return s.repo.GetByID(ctx, entry.ID)
		}
		result = metrics.ResultError
		return nil, err
	}

	if input.Reason == points.ReasonNegativeVariance {
		if err := s.checkConsecutiveNegative(ctx, entry); err != nil {
			result = metrics.ResultError
			return nil, err
		}
	}
	if err := s.checkSuspension(ctx, entry); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return &entry, nil
}

// ManualAdjust writes an admin-entered adjustment with explicit points.
func (s *Service) ManualAdjust(ctx context.Context, staffID string, storeID int, pointsChange decimal.Decimal, referenceID, note string) (*points.PointEntry, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObservePointsRecord(result, time.Since(start))
	}()

	entry, err := points.NewManualAdjustment(staffID, storeID, pointsChange, referenceID, note, s.now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		if points.IsDuplicate(err) {
			return s.repo.GetByID(ctx, entry.ID)
		}
		result = metrics.ResultError
		return nil, err
	}
	if err := s.checkSuspension(ctx, entry); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return &entry, nil
}

// History lists a staff member's most recent entries.
func (s *Service) History(ctx context.Context, staffID string, limit int) ([]points.PointEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByStaff(ctx, staffID, limit)
}

// Summary returns the aggregate view of one staff member.
func (s *Service) Summary(ctx context.Context, staffID string) (points.StaffSummary, error) {
	return s.repo.Summary(ctx, staffID)
}

// Leaderboard ranks staff of a store by balance, highest first.
func (s *Service) Leaderboard(ctx context.Context, storeID, limit int) ([]points.StaffSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.Leaderboard(ctx, storeID, limit)
}

// checkConsecutiveNegative records the discipline penalty once the staff
// member has shown a shortage on each of the trailing N days.
func (s *Service) checkConsecutiveNegative(ctx context.Context, latest points.PointEntry) error {
	since := dayStart(latest.CreatedAt).AddDate(0, 0, -(consecutiveNegativeDays - 1))
	history, err := s.repo.ListByStaffSince(ctx, latest.StaffID, points.ReasonNegativeVariance, since)
	if err != nil {
		return err
	}
	days := make(map[time.Time]struct{}, len(history))
	for _, entry := range history {
		days[dayStart(entry.CreatedAt)] = struct{}{}
	}
	for offset := 0; offset < consecutiveNegativeDays; offset++ {
		day := dayStart(latest.CreatedAt).AddDate(0, 0, -offset)
		if _, ok := days[day]; !ok {
			return nil
		}
	}

	// Keyed on the day so the streak is penalized once even when several
	// settlements land on the same date.
	ref := "consec-" + dayStart(latest.CreatedAt).Format("20060102")
	penalty, err := points.NewPointEntry(latest.StaffID, latest.StoreID, points.ReasonConsecutiveNegative, ref, decimal.Zero, decimal.Zero, s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, penalty); err != nil && !points.IsDuplicate(err) {
		return err
	}
	return nil
}

// checkSuspension raises the advisory auto-suspend signal when the balance
// reaches the threshold. Delivery failures are logged, not surfaced.
func (s *Service) checkSuspension(ctx context.Context, latest points.PointEntry) error {
	summary, err := s.repo.Summary(ctx, latest.StaffID)
	if err != nil {
		return err
	}
	if summary.Balance.GreaterThan(s.threshold) {
		return nil
	}
	metrics.IncAutoSuspendSignal()
	if s.notifier == nil {
		return nil
	}
	signal := points.AutoSuspendSignal{
		StaffID:    latest.StaffID,
		StoreID:    latest.StoreID,
		Balance:    summary.Balance,
		Threshold:  s.threshold,
		TriggerRef: latest.ReferenceID,
		RaisedAt:   s.now().UTC(),
	}
	if err := s.notifier.NotifyAutoSuspend(ctx, signal); err != nil && s.logger != nil {
		s.logger.Printf("points auto-suspend notify error: staff=%s err=%v", latest.StaffID, err)
	}
	return nil
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
