package grading

import (
	"context"
	"time"
)

// Repository stores performance snapshots, keyed by (staff, month).
type Repository interface {
	Save(ctx context.Context, snapshot PerformanceSnapshot) error
	Get(ctx context.Context, staffID string, month time.Time) (*PerformanceSnapshot, error)
	ListByMonth(ctx context.Context, month time.Time) ([]PerformanceSnapshot, error)
}
