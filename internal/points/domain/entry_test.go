package points

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputePointsFollowsReasonTable(t *testing.T) {
	cases := []struct {
		reason     ReasonCode
		varianceKg string
		want       string
	}{
		{ReasonZeroVariance, "0", "10"},
		{ReasonPositiveVariance, "2.5", "5"},
		{ReasonNegativeVariance, "5", "-40"},
		{ReasonNegativeVariance, "-5", "-40"},
		{ReasonConsecutiveNegative, "0", "-25"},
		{ReasonMissedSettlement, "0", "-50"},
		{ReasonInventoryTampering, "0", "-100"},
	}
	for _, tc := range cases {
		got, err := ComputePoints(tc.reason, decimal.RequireFromString(tc.varianceKg))
		if err != nil {
			t.Fatalf("%s: %v", tc.reason, err)
		}
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("%s variance %s: expected %s, got %s", tc.reason, tc.varianceKg, tc.want, got)
		}
	}

	if _, err := ComputePoints("NO_SUCH_REASON", decimal.Zero); err != ErrUnknownReason {
		t.Fatalf("expected ErrUnknownReason, got %v", err)
	}
	if _, err := ComputePoints(ReasonManualAdjustment, decimal.Zero); err != ErrManualPoints {
		t.Fatalf("expected ErrManualPoints, got %v", err)
	}
}

func TestEntryIdentityIsDeterministic(t *testing.T) {
	at := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	first, err := NewPointEntry("staff-1", 3, ReasonNegativeVariance, "var-abc", decimal.Zero, decimal.RequireFromString("4"), at)
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	second, err := NewPointEntry("staff-1", 3, ReasonNegativeVariance, "var-abc", decimal.Zero, decimal.RequireFromString("4"), at.Add(time.Hour))
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same triple produced different ids: %s vs %s", first.ID, second.ID)
	}
	if first.PointsChange.StringFixed(2) != "-32.00" {
		t.Fatalf("expected -32.00 for 4 kg shortage, got %s", first.PointsChange)
	}
	if first.Category != CategoryVariance {
		t.Fatalf("expected variance category, got %s", first.Category)
	}
}

func TestNewPointEntryValidation(t *testing.T) {
	at := time.Now()
	if _, err := NewPointEntry("", 1, ReasonZeroVariance, "ref", decimal.Zero, decimal.Zero, at); err != ErrMissingStaff {
		t.Fatalf("expected ErrMissingStaff, got %v", err)
	}
	if _, err := NewPointEntry("staff-1", 1, ReasonZeroVariance, "", decimal.Zero, decimal.Zero, at); err != ErrMissingRef {
		t.Fatalf("expected ErrMissingRef, got %v", err)
	}
	if _, err := NewManualAdjustment("staff-1", 1, decimal.Zero, "ref", "", at); err != ErrZeroAdjustment {
		t.Fatalf("expected ErrZeroAdjustment, got %v", err)
	}
	manual, err := NewManualAdjustment("staff-1", 1, decimal.RequireFromString("-33.5"), "audit-1", "confirmed by audit", at)
	if err != nil {
		t.Fatalf("manual adjustment: %v", err)
	}
	if manual.Category != CategoryManual || manual.PointsChange.StringFixed(2) != "-33.50" {
		t.Fatalf("unexpected manual entry: %+v", manual)
	}
}
