package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	points "poultry-core/internal/points/domain"
	"poultry-core/internal/points/infrastructure/memory"
)

type notifierStub struct {
	mu      sync.Mutex
	signals []points.AutoSuspendSignal
}

func (n *notifierStub) NotifyAutoSuspend(ctx context.Context, signal points.AutoSuspendSignal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, signal)
	return nil
}

func (n *notifierStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.signals)
}

func newService(t *testing.T, now func() time.Time, opts ...ServiceOption) (*Service, *memory.Repository, *notifierStub) {
	t.Helper()
	repo := memory.NewRepository()
	notifier := &notifierStub{}
	opts = append([]ServiceOption{WithNotifier(notifier), WithClock(now)}, opts...)
	service, err := NewService(repo, opts...)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service, repo, notifier
}

func TestRecordIsIdempotent(t *testing.T) {
	at := time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)
	service, repo, _ := newService(t, func() time.Time { return at })
	ctx := context.Background()

	input := RecordInput{
		StaffID:     "staff-1",
		StoreID:     2,
		Reason:      points.ReasonNegativeVariance,
		ReferenceID: "var-1",
		VarianceKg:  decimal.RequireFromString("3"),
	}
	first, err := service.Record(ctx, input)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.PointsChange.StringFixed(2) != "-24.00" {
		t.Fatalf("expected -24.00, got %s", first.PointsChange)
	}
	second, err := service.Record(ctx, input)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("replay produced a new entry: %s vs %s", second.ID, first.ID)
	}
	if repo.EntryCount() != 1 {
		t.Fatalf("expected a single stored entry, got %d", repo.EntryCount())
	}
}

func TestConsecutiveShortagePenalty(t *testing.T) {
	day := time.Date(2025, 4, 7, 18, 0, 0, 0, time.UTC)
	current := day
	service, repo, _ := newService(t, func() time.Time { return current })
	ctx := context.Background()

	for offset := 0; offset < 3; offset++ {
		current = day.AddDate(0, 0, offset)
		_, err := service.Record(ctx, RecordInput{
			StaffID:     "staff-2",
			StoreID:     1,
			Reason:      points.ReasonNegativeVariance,
			ReferenceID: "var-day-" + current.Format("20060102"),
			VarianceKg:  decimal.RequireFromString("1"),
		})
		if err != nil {
			t.Fatalf("record day %d: %v", offset, err)
		}
	}

	streak, err := repo.ListByStaffSince(ctx, "staff-2", points.ReasonConsecutiveNegative, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(streak) != 1 {
		t.Fatalf("expected one streak penalty after day 3, got %d", len(streak))
	}
	if streak[0].PointsChange.StringFixed(2) != "-25.00" {
		t.Fatalf("expected -25.00 penalty, got %s", streak[0].PointsChange)
	}

	// A second shortage on the third day must not double the penalty.
	if _, err := service.Record(ctx, RecordInput{
		StaffID:     "staff-2",
		StoreID:     1,
		Reason:      points.ReasonNegativeVariance,
		ReferenceID: "var-extra",
		VarianceKg:  decimal.RequireFromString("1"),
	}); err != nil {
		t.Fatalf("extra record: %v", err)
	}
	streak, _ = repo.ListByStaffSince(ctx, "staff-2", points.ReasonConsecutiveNegative, time.Time{})
	if len(streak) != 1 {
		t.Fatalf("expected streak penalized once per day window, got %d", len(streak))
	}
}

func TestTwoShortageDaysDoNotTriggerStreak(t *testing.T) {
	day := time.Date(2025, 4, 7, 18, 0, 0, 0, time.UTC)
	current := day
	service, repo, _ := newService(t, func() time.Time { return current })
	ctx := context.Background()

	for _, offset := range []int{0, 2} {
		current = day.AddDate(0, 0, offset)
		if _, err := service.Record(ctx, RecordInput{
			StaffID:     "staff-3",
			StoreID:     1,
			Reason:      points.ReasonNegativeVariance,
			ReferenceID: "var-gap-" + current.Format("20060102"),
			VarianceKg:  decimal.RequireFromString("1"),
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	streak, _ := repo.ListByStaffSince(ctx, "staff-3", points.ReasonConsecutiveNegative, time.Time{})
	if len(streak) != 0 {
		t.Fatalf("gap day should break the streak, got %d penalties", len(streak))
	}
}

func TestSuspensionSignalAtThreshold(t *testing.T) {
	at := time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)
	service, _, notifier := newService(t, func() time.Time { return at })
	ctx := context.Background()

	// Two tampering hits land exactly on the -200 threshold.
	if _, err := service.Record(ctx, RecordInput{
		StaffID: "staff-4", StoreID: 1, Reason: points.ReasonInventoryTampering, ReferenceID: "audit-1",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no signal at -100, got %d", notifier.count())
	}
	if _, err := service.Record(ctx, RecordInput{
		StaffID: "staff-4", StoreID: 1, Reason: points.ReasonInventoryTampering, ReferenceID: "audit-2",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected a signal at -200, got %d", notifier.count())
	}
	notifier.mu.Lock()
	signal := notifier.signals[0]
	notifier.mu.Unlock()
	if signal.StaffID != "staff-4" || signal.Balance.StringFixed(2) != "-200.00" {
		t.Fatalf("unexpected signal: %+v", signal)
	}
}

func TestManualAdjustmentIdempotent(t *testing.T) {
	at := time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)
	service, repo, _ := newService(t, func() time.Time { return at })
	ctx := context.Background()

	first, err := service.ManualAdjust(ctx, "staff-5", 1, decimal.RequireFromString("15"), "correction-1", "recount")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	second, err := service.ManualAdjust(ctx, "staff-5", 1, decimal.RequireFromString("15"), "correction-1", "recount")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID || repo.EntryCount() != 1 {
		t.Fatalf("manual replay duplicated: count=%d", repo.EntryCount())
	}
	summary, err := service.Summary(ctx, "staff-5")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Balance.StringFixed(2) != "15.00" {
		t.Fatalf("expected balance 15.00, got %s", summary.Balance)
	}
}
