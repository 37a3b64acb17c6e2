package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	grading "poultry-core/internal/grading/domain"
	grademem "poultry-core/internal/grading/infrastructure/memory"
	points "poultry-core/internal/points/domain"
	pointsmem "poultry-core/internal/points/infrastructure/memory"
)

var month = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *pointsmem.Repository) {
	t.Helper()
	entries := pointsmem.NewRepository()
	service, err := NewService(grademem.NewRepository(), entries, DefaultConfig())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service, entries
}

func addEntry(t *testing.T, repo *pointsmem.Repository, staffID, ref string, reason points.ReasonCode, pointsChange, weightKg, varianceKg string, at time.Time) {
	t.Helper()
	entry := points.PointEntry{
		ID:              points.BuildPointEntryID(staffID, ref, reason),
		StaffID:         staffID,
		StoreID:         1,
		Reason:          reason,
		PointsChange:    decimal.RequireFromString(pointsChange),
		WeightHandledKg: decimal.RequireFromString(weightKg),
		VarianceKg:      decimal.RequireFromString(varianceKg),
		ReferenceID:     ref,
		CreatedAt:       at,
	}
	if err := repo.Save(context.Background(), entry); err != nil {
		t.Fatalf("save entry: %v", err)
	}
}

func TestGenerateScoresAndPaysBonus(t *testing.T) {
	service, entries := newService(t)
	// 150 points over 500 kg lands exactly on the A minimum of 0.30.
	addEntry(t, entries, "staff-1", "set-a", points.ReasonZeroVariance, "100", "300", "0", month.AddDate(0, 0, 2))
	addEntry(t, entries, "staff-1", "set-b", points.ReasonZeroVariance, "50", "200", "0", month.AddDate(0, 0, 9))

	snapshot, err := service.Generate(context.Background(), "staff-1", month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := snapshot.Score.StringFixed(4); got != "0.3000" {
		t.Fatalf("expected score 0.3000, got %s", got)
	}
	if snapshot.Grade != grading.GradeA {
		t.Fatalf("expected grade A, got %s", snapshot.Grade)
	}
	if got := snapshot.BonusAmount.StringFixed(2); got != "3000.00" {
		t.Fatalf("expected bonus 3000.00, got %s", got)
	}
	if !snapshot.PenaltyAmount.IsZero() {
		t.Fatalf("expected no penalty, got %s", snapshot.PenaltyAmount)
	}
	if got := snapshot.NetIncentive.StringFixed(2); got != "3000.00" {
		t.Fatalf("expected net incentive 3000.00, got %s", got)
	}
	if snapshot.ZeroVarianceDays != 2 {
		t.Fatalf("expected 2 zero-variance days, got %d", snapshot.ZeroVarianceDays)
	}
	if snapshot.ConfigVersion != DefaultConfig().Version {
		t.Fatalf("expected config version stamped, got %d", snapshot.ConfigVersion)
	}
}

func TestGenerateGradesEAndPenalizes(t *testing.T) {
	service, entries := newService(t)
	// -120 points over 300 kg is a score of -0.40, below every band minimum.
	addEntry(t, entries, "staff-2", "set-c", points.ReasonNegativeVariance, "-120", "300", "15", month.AddDate(0, 0, 4))

	snapshot, err := service.Generate(context.Background(), "staff-2", month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := snapshot.Score.StringFixed(4); got != "-0.4000" {
		t.Fatalf("expected score -0.4000, got %s", got)
	}
	if snapshot.Grade != grading.GradeE {
		t.Fatalf("expected grade E, got %s", snapshot.Grade)
	}
	if got := snapshot.PenaltyAmount.StringFixed(2); got != "150.00" {
		t.Fatalf("expected penalty 10.00/kg over 15 kg = 150.00, got %s", got)
	}
	if !snapshot.BonusAmount.IsZero() {
		t.Fatalf("expected no bonus, got %s", snapshot.BonusAmount)
	}
	if got := snapshot.NetIncentive.StringFixed(2); got != "-150.00" {
		t.Fatalf("expected net incentive -150.00, got %s", got)
	}
}

func TestGenerateZeroWeightGradesC(t *testing.T) {
	service, entries := newService(t)
	// Discipline penalties carry no handled weight.
	addEntry(t, entries, "staff-3", "set-d", points.ReasonMissedSettlement, "-50", "0", "0", month.AddDate(0, 0, 6))

	snapshot, err := service.Generate(context.Background(), "staff-3", month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !snapshot.Score.IsZero() {
		t.Fatalf("expected score 0, got %s", snapshot.Score)
	}
	if snapshot.Grade != grading.GradeC {
		t.Fatalf("expected grade C, got %s", snapshot.Grade)
	}
	if !snapshot.BonusAmount.IsZero() || !snapshot.PenaltyAmount.IsZero() {
		t.Fatalf("expected no money attached, got bonus=%s penalty=%s", snapshot.BonusAmount, snapshot.PenaltyAmount)
	}
}

func TestGenerateCapsBonus(t *testing.T) {
	service, entries := newService(t)
	// 8.00/kg over 1000 kg would be 8000; the cap holds it at 5000.
	addEntry(t, entries, "staff-4", "set-e", points.ReasonZeroVariance, "600", "1000", "0", month.AddDate(0, 0, 1))

	snapshot, err := service.Generate(context.Background(), "staff-4", month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if snapshot.Grade != grading.GradeAPlus {
		t.Fatalf("expected grade A_PLUS, got %s", snapshot.Grade)
	}
	if got := snapshot.BonusAmount.StringFixed(2); got != "5000.00" {
		t.Fatalf("expected capped bonus 5000.00, got %s", got)
	}
}

func TestRegenerateIsDeterministicUntilLocked(t *testing.T) {
	service, entries := newService(t)
	ctx := context.Background()
	addEntry(t, entries, "staff-5", "set-f", points.ReasonZeroVariance, "40", "100", "0", month.AddDate(0, 0, 3))

	first, err := service.Generate(ctx, "staff-5", month)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := service.Generate(ctx, "staff-5", month)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if first.ID != second.ID || !first.Score.Equal(second.Score) || first.Grade != second.Grade {
		t.Fatalf("regeneration diverged: %+v vs %+v", first, second)
	}

	if _, err := service.Lock(ctx, "staff-5", month); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Month closes with more data arriving late; the locked row must not move.
	addEntry(t, entries, "staff-5", "set-g", points.ReasonNegativeVariance, "-80", "0", "10", month.AddDate(0, 0, 20))
	if _, err := service.Generate(ctx, "staff-5", month); !errors.Is(err, grading.ErrSnapshotLocked) {
		t.Fatalf("expected ErrSnapshotLocked, got %v", err)
	}

	stored, err := service.Get(ctx, "staff-5", month)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Score.Equal(first.Score) || !stored.Locked {
		t.Fatalf("locked snapshot changed: %+v", stored)
	}

	// A locked month is final; a second lock is rejected like a regenerate.
	if _, err := service.Lock(ctx, "staff-5", month); !errors.Is(err, grading.ErrSnapshotLocked) {
		t.Fatalf("expected ErrSnapshotLocked on relock, got %v", err)
	}
}
