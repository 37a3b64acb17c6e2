package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poultry-core/internal/audit"
	"poultry-core/internal/auth"
	inventory "poultry-core/internal/inventory/domain"
	"poultry-core/internal/observability/metrics"
	settleapp "poultry-core/internal/settlement/application"
	settlement "poultry-core/internal/settlement/domain"
)

// SettlementHandler handles settlement APIs.
type SettlementHandler struct {
	service     *settleapp.Service
	auditLogger audit.Logger
}

// NewSettlementHandler constructs a handler.
func NewSettlementHandler(service *settleapp.Service, auditLogger audit.Logger) (*SettlementHandler, error) {
	if service == nil {
		return nil, errors.New("settlement handler: nil service")
	}
	return &SettlementHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles settlement routes under /api/v1/settlements.
func (h *SettlementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/settlements" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r)
			return
		case http.MethodGet:
			h.handleList(w, r)
			return
		}
	}
	if strings.HasPrefix(path, "/api/v1/settlements/") {
		rest := strings.TrimPrefix(path, "/api/v1/settlements/")
		h.handleByID(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *SettlementHandler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, id)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "submit":
			if r.Method == http.MethodPost {
				h.handleSubmit(w, r, id)
				return
			}
		case "approve":
			if r.Method == http.MethodPost {
				h.handleApprove(w, r, id)
				return
			}
		case "lock":
			if r.Method == http.MethodPost {
				h.handleLock(w, r, id)
				return
			}
		case "statement.pdf":
			if r.Method == http.MethodGet {
				h.handleStatementPDF(w, r, id)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *SettlementHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StoreID int    `json:"store_id"`
		Date    string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !auth.CanAccessStore(r.Context(), req.StoreID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	s, err := h.service.Create(r.Context(), req.StoreID, date)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, settlementSummary(s))
	h.logAudit(r, s.StoreID, s.ID, "settlement.create", map[string]any{"date": req.Date})
}

func (h *SettlementHandler) handleList(w http.ResponseWriter, r *http.Request) {
	storeID := queryInt(r, "store_id")
	if !auth.CanAccessStore(r.Context(), storeID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	list, err := h.service.List(r.Context(), storeID, queryInt(r, "limit"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		out = append(out, settlementSummary(s))
	}
	writeJSON(w, out)
}

func (h *SettlementHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	s, records, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !auth.CanAccessStore(r.Context(), s.StoreID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	resp := struct {
		Settlement *settlement.Settlement      `json:"settlement"`
		Variances  []settlement.VarianceRecord `json:"variances"`
	}{Settlement: s, Variances: records}
	writeJSON(w, resp)
}

func (h *SettlementHandler) handleSubmit(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ExpectedVersion int    `json:"expected_version"`
		DeclaredCash    string `json:"declared_cash"`
		ExpectedCash    string `json:"expected_cash"`
		ExpenseAmount   string `json:"expense_amount"`
		Items           []struct {
			BirdType      string `json:"bird_type"`
			InventoryType string `json:"inventory_type"`
			DeclaredKg    string `json:"declared_kg"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	submit := settleapp.SubmitRequest{
		ExpectedVersion: req.ExpectedVersion,
		SubmittedBy:     auth.StaffIDFromContext(r.Context()),
	}
	var err error
	if submit.DeclaredCash, err = parseDecimal(req.DeclaredCash); err != nil {
		http.Error(w, "invalid declared_cash", http.StatusBadRequest)
		return
	}
	if submit.ExpectedCash, err = parseDecimal(req.ExpectedCash); err != nil {
		http.Error(w, "invalid expected_cash", http.StatusBadRequest)
		return
	}
	if submit.ExpenseAmount, err = parseDecimal(req.ExpenseAmount); err != nil {
		http.Error(w, "invalid expense_amount", http.StatusBadRequest)
		return
	}
	for _, item := range req.Items {
		declared, err := parseDecimal(item.DeclaredKg)
		if err != nil {
			http.Error(w, "invalid declared_kg", http.StatusBadRequest)
			return
		}
		submit.DeclaredStock = append(submit.DeclaredStock, settleapp.DeclaredItem{
			BirdType:      inventory.BirdType(item.BirdType),
			InventoryType: inventory.InventoryType(item.InventoryType),
			DeclaredKg:    declared,
		})
	}
	s, err := h.service.Submit(r.Context(), id, submit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, settlementSummary(s))
	h.logAudit(r, s.StoreID, s.ID, "settlement.submit", map[string]any{
		"version": s.Version,
		"items":   len(req.Items),
	})
}

func (h *SettlementHandler) handleApprove(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ExpectedVersion int `json:"expected_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s, err := h.service.Approve(r.Context(), id, auth.StaffIDFromContext(r.Context()), req.ExpectedVersion)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, settlementSummary(s))
	h.logAudit(r, s.StoreID, s.ID, "settlement.approve", nil)
}

func (h *SettlementHandler) handleLock(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		ExpectedVersion int `json:"expected_version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s, err := h.service.Lock(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, settlementSummary(s))
	h.logAudit(r, s.StoreID, s.ID, "settlement.lock", nil)
}

func (h *SettlementHandler) handleStatementPDF(w http.ResponseWriter, r *http.Request, id string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("pdf", result, time.Since(start))
	}()

	s, records, err := h.service.Get(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	if !auth.CanAccessStore(r.Context(), s.StoreID) {
		result = metrics.ResultError
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	data, err := BuildStatementPDF(s, records)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export pdf error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, s.StoreID, s.ID, "settlement.export", map[string]any{"format": "pdf"})
}

func (h *SettlementHandler) logAudit(r *http.Request, storeID int, targetID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	identity := auth.IdentityFromContext(r.Context())
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:        audit.NewID(),
		Actor:     identity.StaffID,
		Role:      string(identity.Role),
		Action:    action,
		StoreID:   storeID,
		TargetID:  targetID,
		Metadata:  raw,
		CreatedAt: time.Now().UTC(),
	}.WithRequest(r))
}

func settlementSummary(s *settlement.Settlement) map[string]any {
	return map[string]any{
		"settlement_id": s.ID,
		"store_id":      s.StoreID,
		"date":          s.Date.Format("2006-01-02"),
		"status":        s.Status,
		"version":       s.Version,
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	var transition *settlement.TransitionError
	var conflict *settlement.ConcurrentModificationError
	var insufficient *inventory.InsufficientStockError
	switch {
	case errors.Is(err, settlement.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, settlement.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &transition), errors.As(err, &conflict), errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settlement.ErrInvalidDate),
		errors.Is(err, settlement.ErrMissingSubmitter),
		errors.Is(err, inventory.ErrInvalidStore),
		errors.Is(err, inventory.ErrInvalidBirdType),
		errors.Is(err, inventory.ErrInvalidInventoryType):
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
