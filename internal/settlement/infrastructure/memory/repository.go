package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	settlement "poultry-core/internal/settlement/domain"
)

// Repository is an in-memory settlement store for tests and local runs.
// UpdateCAS mirrors the version check the Postgres store performs.
type Repository struct {
	mu   sync.Mutex
	byID map[string]*settlement.Settlement
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{byID: make(map[string]*settlement.Settlement)}
}

func cloneSettlement(s *settlement.Settlement) *settlement.Settlement {
	clone := *s
	clone.Items = append([]settlement.Item(nil), s.Items...)
	return &clone
}

// Create stores a new settlement, rejecting duplicates.
func (r *Repository) Create(ctx context.Context, s *settlement.Settlement) error {
	if s == nil {
		return settlement.ErrNilSettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return settlement.ErrAlreadyExists
	}
	r.byID[s.ID] = cloneSettlement(s)
	return nil
}

// GetByID returns a settlement copy, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneSettlement(stored), nil
}

// FindByStoreAndDate returns the settlement for a store day, nil when absent.
func (r *Repository) FindByStoreAndDate(ctx context.Context, storeID int, date time.Time) (*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.byID {
		if stored.StoreID == storeID && stored.Date.Equal(date) {
			return cloneSettlement(stored), nil
		}
	}
	return nil, nil
}

// UpdateCAS persists s only when the stored version still matches
// expectedVersion, then bumps the version.
func (r *Repository) UpdateCAS(ctx context.Context, s *settlement.Settlement, expectedVersion int) error {
	if s == nil {
		return settlement.ErrNilSettlement
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[s.ID]
	if !ok {
		return settlement.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return &settlement.ConcurrentModificationError{ID: s.ID, ExpectedVersion: expectedVersion, ActualVersion: stored.Version}
	}
	s.Version = expectedVersion + 1
	r.byID[s.ID] = cloneSettlement(s)
	return nil
}

// ListByStore returns a store's settlements, newest date first.
func (r *Repository) ListByStore(ctx context.Context, storeID, limit int) ([]*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*settlement.Settlement
	for _, stored := range r.byID {
		if stored.StoreID == storeID {
			out = append(out, cloneSettlement(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStaleDrafts returns drafts dated strictly before cutoff.
func (r *Repository) ListStaleDrafts(ctx context.Context, cutoff time.Time) ([]*settlement.Settlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*settlement.Settlement
	for _, stored := range r.byID {
		if stored.Status == settlement.StatusDraft && stored.Date.Before(cutoff) {
			out = append(out, cloneSettlement(stored))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// VarianceStore is the in-memory variance record store.
type VarianceStore struct {
	mu   sync.Mutex
	byID map[string]settlement.VarianceRecord
}

// NewVarianceStore constructs an empty store.
func NewVarianceStore() *VarianceStore {
	return &VarianceStore{byID: make(map[string]settlement.VarianceRecord)}
}

// SaveAll upserts records by id.
func (v *VarianceStore) SaveAll(ctx context.Context, records []settlement.VarianceRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, record := range records {
		v.byID[record.ID] = record
	}
	return nil
}

// ListBySettlement returns records of one settlement in a stable order.
func (v *VarianceStore) ListBySettlement(ctx context.Context, settlementID string) ([]settlement.VarianceRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []settlement.VarianceRecord
	for _, record := range v.byID {
		if record.SettlementID == settlementID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Resolve marks a record with its resolution outcome.
func (v *VarianceStore) Resolve(ctx context.Context, id string, status settlement.ResolutionStatus, resolvedBy, ledgerEntryID string, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.byID[id]
	if !ok {
		return settlement.ErrNotFound
	}
	record.Status = status
	record.ResolvedBy = resolvedBy
	record.ResolvedAt = at.UTC()
	if ledgerEntryID != "" {
		record.LedgerEntryID = ledgerEntryID
	}
	v.byID[id] = record
	return nil
}
