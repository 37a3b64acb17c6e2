package application

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	invapp "poultry-core/internal/inventory/application"
	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/observability/metrics"
	points "poultry-core/internal/points/domain"
	settlement "poultry-core/internal/settlement/domain"
)

// PointAward is the outcome routed to the points engine.
type PointAward struct {
	StaffID         string
	StoreID         int
	Reason          points.ReasonCode
	ReferenceID     string
	WeightHandledKg decimal.Decimal
	VarianceKg      decimal.Decimal
}

// PointsRecorder records settlement outcomes as point deltas.
type PointsRecorder interface {
	RecordAward(ctx context.Context, award PointAward) error
}

// ManagerDirectory resolves the accountable manager of a store.
type ManagerDirectory interface {
	ManagerFor(ctx context.Context, storeID int) (string, error)
}

// Service drives the settlement workflow: draft, submit, approve, lock, and
// the missed-settlement policy timeout.
type Service struct {
	repo      settlement.Repository
	variances settlement.VarianceStore
	balances  *invapp.BalanceService
	guard     *invapp.TransactionGuard
	points    PointsRecorder
	managers  ManagerDirectory
	now       func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithManagerDirectory wires the store manager lookup used by the
// missed-settlement check.
func WithManagerDirectory(directory ManagerDirectory) ServiceOption {
	return func(s *Service) {
		s.managers = directory
	}
}

// NewService constructs a settlement service.
func NewService(repo settlement.Repository, variances settlement.VarianceStore, balances *invapp.BalanceService, guard *invapp.TransactionGuard, recorder PointsRecorder, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("settlement service: nil repo")
	}
	if variances == nil {
		return nil, errors.New("settlement service: nil variance store")
	}
	if balances == nil {
		return nil, errors.New("settlement service: nil balance service")
	}
	if guard == nil {
		return nil, errors.New("settlement service: nil guard")
	}
	service := &Service{
		repo:      repo,
		variances: variances,
		balances:  balances,
		guard:     guard,
		points:    recorder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create opens the draft for a store day, returning the existing settlement
// when one was already created.
func (s *Service) Create(ctx context.Context, storeID int, date time.Time) (*settlement.Settlement, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementTransition("create", result, time.Since(start))
	}()

	existing, err := s.repo.FindByStoreAndDate(ctx, storeID, invapp.DayStart(date))
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	draft, err := settlement.NewSettlement(storeID, date, s.now())
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.Create(ctx, draft); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return draft, nil
}

// DeclaredItem is one declared stock figure in a submission.
type DeclaredItem struct {
	BirdType      inventory.BirdType
	InventoryType inventory.InventoryType
	DeclaredKg    decimal.Decimal
}

// SubmitRequest carries a manager's declarations plus the version they read.
type SubmitRequest struct {
	ExpectedVersion int
	DeclaredCash    decimal.Decimal
	ExpectedCash    decimal.Decimal
	ExpenseAmount   decimal.Decimal
	DeclaredStock   []DeclaredItem
	SubmittedBy     string
}

// Submit computes variances against ledger balances and moves the
// settlement to SUBMITTED under optimistic concurrency. Negative variances
// are deducted from stock and penalized immediately; positive ones wait for
// approval.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) (*settlement.Settlement, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementTransition("submit", result, time.Since(start))
	}()

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if st == nil {
		result = metrics.ResultError
		return nil, settlement.ErrNotFound
	}
	if err := s.checkVersion(st, req.ExpectedVersion); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	items, err := s.buildItems(ctx, st, req.DeclaredStock)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.now()
	if err := st.Submit(settlement.SubmitInput{
		DeclaredCash:  req.DeclaredCash,
		ExpectedCash:  req.ExpectedCash,
		ExpenseAmount: req.ExpenseAmount,
		Items:         items,
		SubmittedBy:   req.SubmittedBy,
	}, now); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	// Deduction and variance records land before the status flip: a rejected
	// deduction or a crash here leaves the stored settlement DRAFT so the
	// submit can be retried. Record ids are deterministic per settlement and
	// the deduction batch carries an idempotency key, so a retry upserts the
	// same rows instead of duplicating them.
	records := settlement.NewVarianceRecords(st, now)
	if err := s.deductNegativeVariances(ctx, st, records); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.variances.SaveAll(ctx, records); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	if err := s.repo.UpdateCAS(ctx, st, req.ExpectedVersion); err != nil {
		result = metrics.ResultError
		var conflict *settlement.ConcurrentModificationError
		if errors.As(err, &conflict) {
			metrics.IncSettlementConflict()
		}
		return nil, err
	}
	if err := s.awardSubmitPoints(ctx, st, records); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return st, nil
}

// checkVersion rejects a stale read before any transition is attempted, so a
// loser of a concurrent race gets the typed conflict with version detail
// rather than an invalid-transition error.
func (s *Service) checkVersion(st *settlement.Settlement, expectedVersion int) error {
	if expectedVersion == st.Version {
		return nil
	}
	metrics.IncSettlementConflict()
	return &settlement.ConcurrentModificationError{
		ID:              st.ID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   st.Version,
	}
}

// Approve moves SUBMITTED to APPROVED and resolves positive variances:
// found stock is credited back to the ledger and rewarded.
func (s *Service) Approve(ctx context.Context, id, approvedBy string, expectedVersion int) (*settlement.Settlement, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementTransition("approve", result, time.Since(start))
	}()

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if st == nil {
		result = metrics.ResultError
		return nil, settlement.ErrNotFound
	}
	if err := s.checkVersion(st, expectedVersion); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	now := s.now()
	if err := st.Approve(approvedBy, now); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.UpdateCAS(ctx, st, expectedVersion); err != nil {
		result = metrics.ResultError
		var conflict *settlement.ConcurrentModificationError
		if errors.As(err, &conflict) {
			metrics.IncSettlementConflict()
		}
		return nil, err
	}
	if err := s.creditPositiveVariances(ctx, st, approvedBy, now); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return st, nil
}

// Lock moves APPROVED to the terminal LOCKED state.
func (s *Service) Lock(ctx context.Context, id string, expectedVersion int) (*settlement.Settlement, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementTransition("lock", result, time.Since(start))
	}()

	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if st == nil {
		result = metrics.ResultError
		return nil, settlement.ErrNotFound
	}
	if err := s.checkVersion(st, expectedVersion); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := st.Lock(s.now()); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if err := s.repo.UpdateCAS(ctx, st, expectedVersion); err != nil {
		result = metrics.ResultError
		var conflict *settlement.ConcurrentModificationError
		if errors.As(err, &conflict) {
			metrics.IncSettlementConflict()
		}
		return nil, err
	}
	return st, nil
}

// Get returns a settlement with its variance records.
func (s *Service) Get(ctx context.Context, id string) (*settlement.Settlement, []settlement.VarianceRecord, error) {
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		return nil, nil, settlement.ErrNotFound
	}
	records, err := s.variances.ListBySettlement(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return st, records, nil
}

// List returns recent settlements of a store.
func (s *Service) List(ctx context.Context, storeID, limit int) ([]*settlement.Settlement, error) {
	if limit <= 0 {
		limit = 31
	}
	return s.repo.ListByStore(ctx, storeID, limit)
}

// CheckMissedSettlements applies the policy timeout: drafts dated before the
// check date with recorded sales move to MISSED_LOCKED and their manager is
// penalized. Days without sales are exempt. Returns the ids transitioned.
func (s *Service) CheckMissedSettlements(ctx context.Context, checkDate time.Time) ([]string, error) {
	start := s.now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementTransition("missed_check", result, time.Since(start))
	}()

	cutoff := invapp.DayStart(checkDate)
	drafts, err := s.repo.ListStaleDrafts(ctx, cutoff)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	var missed []string
	for _, st := range drafts {
		salesKg, err := s.daySalesKg(ctx, st.StoreID, st.Date)
		if err != nil {
			result = metrics.ResultError
			return missed, err
		}
		if salesKg.IsZero() {
			continue
		}
		now := s.now()
		if err := st.MarkMissed(now); err != nil {
			continue
		}
		if err := s.repo.UpdateCAS(ctx, st, st.Version); err != nil {
			var conflict *settlement.ConcurrentModificationError
			if errors.As(err, &conflict) {
				// Someone submitted in the meantime; leave it alone.
				continue
			}
			result = metrics.ResultError
			return missed, err
		}
		missed = append(missed, st.ID)

		if s.points == nil || s.managers == nil {
			continue
		}
		manager, err := s.managers.ManagerFor(ctx, st.StoreID)
		if err != nil || manager == "" {
			continue
		}
		if err := s.points.RecordAward(ctx, PointAward{
			StaffID:     manager,
			StoreID:     st.StoreID,
			Reason:      points.ReasonMissedSettlement,
			ReferenceID: st.ID,
		}); err != nil {
			result = metrics.ResultError
			return missed, err
		}
	}
	return missed, nil
}

func (s *Service) buildItems(ctx context.Context, st *settlement.Settlement, declared []DeclaredItem) ([]settlement.Item, error) {
	declaredByKey := make(map[inventory.StockKey]decimal.Decimal, len(declared))
	for _, item := range declared {
		key, err := inventory.NewStockKey(st.StoreID, item.BirdType, item.InventoryType)
		if err != nil {
			return nil, err
		}
		declaredByKey[key] = item.DeclaredKg.Round(3)
	}

	dayEnd := st.Date.Add(24 * time.Hour)
	birdTypes := []inventory.BirdType{inventory.BirdBroiler, inventory.BirdParentCull}
	invTypes := []inventory.InventoryType{inventory.InvLive, inventory.InvSkin, inventory.InvSkinless}

	var items []settlement.Item
	for _, bird := range birdTypes {
		for _, inv := range invTypes {
			key, err := inventory.NewStockKey(st.StoreID, bird, inv)
			if err != nil {
				return nil, err
			}
			expected, err := s.balances.BalanceAsOf(ctx, key, dayEnd)
			if err != nil {
				return nil, err
			}
			declaredKg, ok := declaredByKey[key]
			if !ok {
				declaredKg = decimal.Zero
			}
			if expected.IsZero() && declaredKg.IsZero() {
				continue
			}
			items = append(items, settlement.Item{
				BirdType:      bird,
				InventoryType: inv,
				ExpectedKg:    expected.Round(3),
				DeclaredKg:    declaredKg,
			})
		}
	}
	return items, nil
}

func (s *Service) deductNegativeVariances(ctx context.Context, st *settlement.Settlement, records []settlement.VarianceRecord) error {
	var lines []inventory.BatchLine
	var deducted []*settlement.VarianceRecord
	for i := range records {
		record := &records[i]
		if record.VarianceType != settlement.VarianceNegative {
			continue
		}
		key, err := inventory.NewStockKey(record.StoreID, record.BirdType, record.InventoryType)
		if err != nil {
			return err
		}
		lines = append(lines, inventory.BatchLine{
			Key:        key,
			QuantityKg: record.VarianceKg.Neg(),
			ReasonCode: inventory.ReasonVarianceNegative,
		})
		deducted = append(deducted, record)
	}
	if len(lines) == 0 {
		return nil
	}
	result, err := s.guard.Commit(ctx, inventory.TransactionBatch{
		Kind:           inventory.KindAdjustment,
		ReferenceID:    st.ID,
		IdempotencyKey: "settle-deduct-" + st.ID,
		StaffID:        st.SubmittedBy,
		Lines:          lines,
	})
	if err != nil {
		return err
	}
	for i, record := range deducted {
		if i < len(result.EntryIDs) {
			record.LedgerEntryID = result.EntryIDs[i]
		}
	}
	return nil
}

func (s *Service) creditPositiveVariances(ctx context.Context, st *settlement.Settlement, approvedBy string, now time.Time) error {
	records, err := s.variances.ListBySettlement(ctx, st.ID)
	if err != nil {
		return err
	}
	var lines []inventory.BatchLine
	var pending []settlement.VarianceRecord
	for _, record := range records {
		if record.VarianceType != settlement.VariancePositive || record.Status != settlement.ResolutionPending {
			continue
		}
		key, err := inventory.NewStockKey(record.StoreID, record.BirdType, record.InventoryType)
		if err != nil {
			return err
		}
		lines = append(lines, inventory.BatchLine{
			Key:        key,
			QuantityKg: record.VarianceKg,
			ReasonCode: inventory.ReasonVariancePositive,
		})
		pending = append(pending, record)
	}
	if len(lines) == 0 {
		return nil
	}
	result, err := s.guard.Commit(ctx, inventory.TransactionBatch{
		Kind:           inventory.KindAdjustment,
		ReferenceID:    st.ID,
		IdempotencyKey: "settle-found-" + st.ID,
		StaffID:        approvedBy,
		Lines:          lines,
	})
	if err != nil {
		return err
	}
	for i, record := range pending {
		entryID := ""
		if i < len(result.EntryIDs) {
			entryID = result.EntryIDs[i]
		}
		if err := s.variances.Resolve(ctx, record.ID, settlement.ResolutionApproved, approvedBy, entryID, now); err != nil {
			return err
		}
		if s.points != nil {
			if err := s.points.RecordAward(ctx, PointAward{
				StaffID:     st.SubmittedBy,
				StoreID:     st.StoreID,
				Reason:      points.ReasonPositiveVariance,
				ReferenceID: record.ID,
				VarianceKg:  record.VarianceKg,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) awardSubmitPoints(ctx context.Context, st *settlement.Settlement, records []settlement.VarianceRecord) error {
	if s.points == nil {
		return nil
	}
	for _, record := range records {
		if record.VarianceType != settlement.VarianceNegative {
			continue
		}
		if err := s.points.RecordAward(ctx, PointAward{
			StaffID:     st.SubmittedBy,
			StoreID:     st.StoreID,
			Reason:      points.ReasonNegativeVariance,
			ReferenceID: record.ID,
			VarianceKg:  record.VarianceKg,
		}); err != nil {
			return err
		}
	}
	if st.AllZeroVariance() {
		salesKg, err := s.daySalesKg(ctx, st.StoreID, st.Date)
		if err != nil {
			return err
		}
		if err := s.points.RecordAward(ctx, PointAward{
			StaffID:         st.SubmittedBy,
			StoreID:         st.StoreID,
			Reason:          points.ReasonZeroVariance,
			ReferenceID:     st.ID,
			WeightHandledKg: salesKg,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) daySalesKg(ctx context.Context, storeID int, date time.Time) (decimal.Decimal, error) {
	reports, err := s.balances.StoreMovementReport(ctx, storeID, date)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, report := range reports {
		total = total.Add(report.Sales)
	}
	return total, nil
}
