package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	grading "poultry-core/internal/grading/domain"
)

// Repository is an in-memory snapshot store for tests and local runs.
type Repository struct {
	mu   sync.Mutex
	byID map[string]grading.PerformanceSnapshot
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{byID: make(map[string]grading.PerformanceSnapshot)}
}

// Save upserts a snapshot by its identity.
func (r *Repository) Save(ctx context.Context, snapshot grading.PerformanceSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[snapshot.ID] = snapshot
	return nil
}

// Get returns the snapshot of a staff month, nil when absent.
func (r *Repository) Get(ctx context.Context, staffID string, month time.Time) (*grading.PerformanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.byID[grading.BuildSnapshotID(staffID, month)]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// ListByMonth returns every snapshot of a month ordered by staff id.
func (r *Repository) ListByMonth(ctx context.Context, month time.Time) ([]grading.PerformanceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []grading.PerformanceSnapshot
	for _, snapshot := range r.byID {
		if snapshot.Month.Equal(month) {
			out = append(out, snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID < out[j].StaffID })
	return out, nil
}
