package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"poultry-core/internal/audit"
	"poultry-core/internal/auth"
	invapp "poultry-core/internal/inventory/application"
	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/observability/metrics"
)

// StockHandler exposes the inventory ledger over HTTP: transaction commits,
// balance queries and daily movement reports.
type StockHandler struct {
	guard       *invapp.TransactionGuard
	balances    *invapp.BalanceService
	auditLogger audit.Logger
}

// NewStockHandler constructs a handler.
func NewStockHandler(guard *invapp.TransactionGuard, balances *invapp.BalanceService, auditLogger audit.Logger) (*StockHandler, error) {
	if guard == nil {
		return nil, errors.New("stock handler: nil guard")
	}
	if balances == nil {
		return nil, errors.New("stock handler: nil balance service")
	}
	return &StockHandler{guard: guard, balances: balances, auditLogger: auditLogger}, nil
}

// ServeHTTP handles stock routes under /api/v1/stock.
func (h *StockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/stock/transactions" && r.Method == http.MethodPost:
		h.handleCommit(w, r)
	case r.URL.Path == "/api/v1/stock/balance" && r.Method == http.MethodGet:
		h.handleBalance(w, r)
	case r.URL.Path == "/api/v1/stock/movement" && r.Method == http.MethodGet:
		h.handleMovement(w, r)
	case r.URL.Path == "/api/v1/stock/reasons" && r.Method == http.MethodGet:
		h.handleReasons(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type batchLinePayload struct {
	StoreID         int    `json:"store_id"`
	BirdType        string `json:"bird_type"`
	InventoryType   string `json:"inventory_type"`
	QuantityKg      string `json:"quantity_kg"`
	BirdCountChange int    `json:"bird_count_change"`
	ReasonCode      string `json:"reason_code"`
}

func (h *StockHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind        string             `json:"kind"`
		ReferenceID string             `json:"reference_id"`
		Lines       []batchLinePayload `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	batch := inventory.TransactionBatch{
		Kind:           inventory.TransactionKind(req.Kind),
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		StaffID:        auth.StaffIDFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		if !auth.CanAccessStore(r.Context(), line.StoreID) {
			http.Error(w, "store not accessible", http.StatusForbidden)
			return
		}
		key, err := inventory.NewStockKey(line.StoreID, inventory.BirdType(line.BirdType), inventory.InventoryType(line.InventoryType))
		if err != nil {
			respondStockError(w, err)
			return
		}
		qty, err := parseDecimal(line.QuantityKg)
		if err != nil {
			http.Error(w, "invalid quantity_kg", http.StatusBadRequest)
			return
		}
		batch.Lines = append(batch.Lines, inventory.BatchLine{
			Key:             key,
			QuantityKg:      qty,
			BirdCountChange: line.BirdCountChange,
			ReasonCode:      inventory.ReasonCode(line.ReasonCode),
		})
	}

	outcome, err := h.guard.Commit(r.Context(), batch)
	if err != nil {
		respondStockError(w, err)
		return
	}
	writeJSON(w, outcome)
	h.logAudit(r, outcome)
}

func (h *StockHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id")
	if !auth.CanAccessStore(r.Context(), storeID) {
		http.Error(w, "store not accessible", http.StatusForbidden)
		return
	}
	key, err := inventory.NewStockKey(storeID,
		inventory.BirdType(r.URL.Query().Get("bird_type")),
		inventory.InventoryType(r.URL.Query().Get("inventory_type")))
	if err != nil {
		respondStockError(w, err)
		return
	}
	asOf := time.Time{}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid as_of, want RFC3339", http.StatusBadRequest)
			return
		}
	}
	balance, err := h.balances.BalanceAsOf(r.Context(), key, asOf)
	if err != nil {
		respondStockError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"store_id":       key.StoreID,
		"bird_type":      key.BirdType,
		"inventory_type": key.InventoryType,
		"balance_kg":     balance.StringFixed(3),
	})
}

func (h *StockHandler) handleMovement(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id")
	if !auth.CanAccessStore(r.Context(), storeID) {
		http.Error(w, "store not accessible", http.StatusForbidden)
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	reports, err := h.balances.StoreMovementReport(r.Context(), storeID, date)
	if err != nil {
		respondStockError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		start := time.Now()
		payload, err := BuildMovementXLSX(storeID, date, reports)
		if err != nil {
			metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename=movement-"+date.Format("2006-01-02")+".xlsx")
		_, _ = w.Write(payload)
		return
	}

	views := make([]map[string]any, 0, len(reports))
	for _, report := range reports {
		views = append(views, movementView(report))
	}
	writeJSON(w, map[string]any{
		"store_id": storeID,
		"date":     invapp.DayStart(date).Format("2006-01-02"),
		"reports":  views,
	})
}

func (h *StockHandler) handleReasons(w http.ResponseWriter, _ *http.Request) {
	codes := inventory.ReasonCodes()
	out := make([]map[string]any, 0, len(codes))
	for _, code := range codes {
		spec, _ := inventory.LookupReason(code)
		out = append(out, map[string]any{
			"code":         code,
			"description":  spec.Description,
			"direction":    spec.Direction,
			"category":     spec.Category,
			"requires_ref": spec.RequiresRef,
		})
	}
	writeJSON(w, out)
}

func (h *StockHandler) logAudit(r *http.Request, outcome inventory.TransactionResult) {
	if h.auditLogger == nil || outcome.Replayed {
		return
	}
	identity := auth.IdentityFromContext(r.Context())
	meta, _ := json.Marshal(map[string]any{
		"kind":    outcome.Kind,
		"entries": len(outcome.EntryIDs),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:        audit.NewID(),
		Actor:     identity.StaffID,
		Role:      string(identity.Role),
		Action:    "stock.commit",
		StoreID:   identity.StoreID,
		TargetID:  outcome.TransactionID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}.WithRequest(r))
}

func movementView(report inventory.MovementReport) map[string]any {
	return map[string]any{
		"bird_type":      report.Key.BirdType,
		"inventory_type": report.Key.InventoryType,
		"opening":        report.Opening.StringFixed(3),
		"purchases":      report.Purchases.StringFixed(3),
		"processing_in":  report.ProcessingIn.StringFixed(3),
		"processing_out": report.ProcessingOut.StringFixed(3),
		"sales":          report.Sales.StringFixed(3),
		"transfers_in":   report.TransfersIn.StringFixed(3),
		"transfers_out":  report.TransfersOut.StringFixed(3),
		"wastage":        report.Wastage.StringFixed(3),
		"adjustments":    report.Adjustments.StringFixed(3),
		"closing":        report.Closing.StringFixed(3),
		"balanced":       report.Balanced(),
	}
}

func respondStockError(w http.ResponseWriter, err error) {
	var insufficient *inventory.InsufficientStockError
	var lockTimeout *inventory.LockTimeoutError
	switch {
	case errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &lockTimeout):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, inventory.ErrInvalidStore),
		errors.Is(err, inventory.ErrInvalidBirdType),
		errors.Is(err, inventory.ErrInvalidInventoryType),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrUnknownReason),
		errors.Is(err, inventory.ErrDirectionMismatch),
		errors.Is(err, inventory.ErrMissingReference),
		errors.Is(err, inventory.ErrEmptyBatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func queryInt(r *http.Request, name string) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
