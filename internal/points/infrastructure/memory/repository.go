package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	points "poultry-core/internal/points/domain"
)

// Repository is an in-memory point store for tests and local runs.
type Repository struct {
	mu       sync.Mutex
	entries  []points.PointEntry
	byID     map[string]int
	byTriple map[string]string
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		byID:     make(map[string]int),
		byTriple: make(map[string]string),
	}
}

func tripleKey(staffID, referenceID string, reason points.ReasonCode) string {
	return staffID + "|" + referenceID + "|" + string(reason)
}

// Save stores an entry, rejecting replays of the uniqueness triple.
func (r *Repository) Save(ctx context.Context, entry points.PointEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.StaffID == "" {
		return points.ErrMissingStaff
	}
	key := tripleKey(entry.StaffID, entry.ReferenceID, entry.Reason)
	if _, ok := r.byTriple[key]; ok {
		return &points.DuplicateEntryError{
			StaffID:     entry.StaffID,
			ReferenceID: entry.ReferenceID,
			Reason:      entry.Reason,
		}
	}
	r.byTriple[key] = entry.ID
	r.byID[entry.ID] = len(r.entries)
	r.entries = append(r.entries, entry)
	return nil
}

// GetByID returns one entry, ErrEntryNotFound when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*points.PointEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return nil, points.ErrEntryNotFound
	}
	entry := r.entries[idx]
	return &entry, nil
}

// ListByStaff returns the newest entries of a staff member.
func (r *Repository) ListByStaff(ctx context.Context, staffID string, limit int) ([]points.PointEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []points.PointEntry
	for _, entry := range r.entries {
		if entry.StaffID == staffID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByStaffSince returns entries with a reason at or after since.
func (r *Repository) ListByStaffSince(ctx context.Context, staffID string, reason points.ReasonCode, since time.Time) ([]points.PointEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []points.PointEntry
	for _, entry := range r.entries {
		if entry.StaffID != staffID || entry.Reason != reason {
			continue
		}
		if entry.CreatedAt.Before(since) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// ListByStaffBetween returns entries in the half-open window [from, to).
func (r *Repository) ListByStaffBetween(ctx context.Context, staffID string, from, to time.Time) ([]points.PointEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []points.PointEntry
	for _, entry := range r.entries {
		if entry.StaffID != staffID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Summary aggregates one staff member's entries.
func (r *Repository) Summary(ctx context.Context, staffID string) (points.StaffSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := points.StaffSummary{StaffID: staffID, Balance: decimal.Zero}
	for _, entry := range r.entries {
		if entry.StaffID != staffID {
			continue
		}
		summary.Balance = summary.Balance.Add(entry.PointsChange)
		summary.EntryCount++
		if entry.Category == points.CategoryFraud {
			summary.FraudEntries++
		}
		if entry.CreatedAt.After(summary.LastEntryAt) {
			summary.LastEntryAt = entry.CreatedAt
		}
	}
	return summary, nil
}

// Leaderboard ranks staff of a store by balance, highest first.
func (r *Repository) Leaderboard(ctx context.Context, storeID, limit int) ([]points.StaffSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byStaff := make(map[string]*points.StaffSummary)
	for _, entry := range r.entries {
		if storeID > 0 && entry.StoreID != storeID {
			continue
		}
		summary, ok := byStaff[entry.StaffID]
		if !ok {
			summary = &points.StaffSummary{StaffID: entry.StaffID, Balance: decimal.Zero}
			byStaff[entry.StaffID] = summary
		}
		summary.Balance = summary.Balance.Add(entry.PointsChange)
		summary.EntryCount++
		if entry.Category == points.CategoryFraud {
			summary.FraudEntries++
		}
		if entry.CreatedAt.After(summary.LastEntryAt) {
			summary.LastEntryAt = entry.CreatedAt
		}
	}
	out := make([]points.StaffSummary, 0, len(byStaff))
	for _, summary := range byStaff {
		out = append(out, *summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Balance.Equal(out[j].Balance) {
			return out[i].Balance.GreaterThan(out[j].Balance)
		}
		return out[i].StaffID < out[j].StaffID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EntryCount reports the stored entry count.
func (r *Repository) EntryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
