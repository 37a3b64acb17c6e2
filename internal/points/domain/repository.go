package points

import (
	"context"
	"time"
)

// Repository stores point entries. Save must enforce the uniqueness of the
// (staff, reference, reason) triple and return DuplicateEntryError on replay.
type Repository interface {
	Save(ctx context.Context, entry PointEntry) error
	GetByID(ctx context.Context, id string) (*PointEntry, error)
	ListByStaff(ctx context.Context, staffID string, limit int) ([]PointEntry, error)
	ListByStaffSince(ctx context.Context, staffID string, reason ReasonCode, since time.Time) ([]PointEntry, error)
	ListByStaffBetween(ctx context.Context, staffID string, from, to time.Time) ([]PointEntry, error)
	Summary(ctx context.Context, staffID string) (StaffSummary, error)
	Leaderboard(ctx context.Context, storeID, limit int) ([]StaffSummary, error)
}
