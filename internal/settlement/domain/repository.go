package settlement

import (
	"context"
	"time"
)

// Repository persists settlement aggregates with optimistic concurrency.
type Repository interface {
	Create(ctx context.Context, s *Settlement) error
	GetByID(ctx context.Context, id string) (*Settlement, error)
	FindByStoreAndDate(ctx context.Context, storeID int, date time.Time) (*Settlement, error)
	// UpdateCAS persists the aggregate only if the stored version still
	// equals expectedVersion, bumping the version on success. A stale
	// version fails with ConcurrentModificationError.
	UpdateCAS(ctx context.Context, s *Settlement, expectedVersion int) error
	ListByStore(ctx context.Context, storeID int, limit int) ([]*Settlement, error)
	// ListStaleDrafts returns drafts dated strictly before the cutoff day.
	ListStaleDrafts(ctx context.Context, cutoff time.Time) ([]*Settlement, error)
}

// VarianceStore persists variance records derived at submission.
type VarianceStore interface {
	SaveAll(ctx context.Context, records []VarianceRecord) error
	ListBySettlement(ctx context.Context, settlementID string) ([]VarianceRecord, error)
	// Resolve finalizes a pending record; resolved records are immutable.
	Resolve(ctx context.Context, id string, status ResolutionStatus, resolvedBy, ledgerEntryID string, at time.Time) error
}
