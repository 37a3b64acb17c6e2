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
	pointsapp "poultry-core/internal/points/application"
	points "poultry-core/internal/points/domain"
)

// PointsHandler handles staff point APIs.
type PointsHandler struct {
	service     *pointsapp.Service
	auditLogger audit.Logger
}

// NewPointsHandler constructs a handler.
func NewPointsHandler(service *pointsapp.Service, auditLogger audit.Logger) (*PointsHandler, error) {
	if service == nil {
		return nil, errors.New("points handler: nil service")
	}
	return &PointsHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles point routes under /api/v1/points.
func (h *PointsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/points/record" && r.Method == http.MethodPost:
		h.handleRecord(w, r)
	case r.URL.Path == "/api/v1/points/adjust" && r.Method == http.MethodPost:
		h.handleAdjust(w, r)
	case r.URL.Path == "/api/v1/points/history" && r.Method == http.MethodGet:
		h.handleHistory(w, r)
	case r.URL.Path == "/api/v1/points/summary" && r.Method == http.MethodGet:
		h.handleSummary(w, r)
	case r.URL.Path == "/api/v1/points/leaderboard" && r.Method == http.MethodGet:
		h.handleLeaderboard(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PointsHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID         string `json:"staff_id"`
		StoreID         int    `json:"store_id"`
		Reason          string `json:"reason"`
		ReferenceID     string `json:"reference_id"`
		WeightHandledKg string `json:"weight_handled_kg"`
		VarianceKg      string `json:"variance_kg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	weight, err := parseDecimal(req.WeightHandledKg)
	if err != nil {
		http.Error(w, "invalid weight_handled_kg", http.StatusBadRequest)
		return
	}
	variance, err := parseDecimal(req.VarianceKg)
	if err != nil {
		http.Error(w, "invalid variance_kg", http.StatusBadRequest)
		return
	}
	entry, err := h.service.Record(r.Context(), pointsapp.RecordInput{
		StaffID:         req.StaffID,
		StoreID:         req.StoreID,
		Reason:          points.ReasonCode(req.Reason),
		ReferenceID:     req.ReferenceID,
		WeightHandledKg: weight,
		VarianceKg:      variance,
	})
	if err != nil {
		respondPointsError(w, err)
		return
	}
	writeJSON(w, entryView(entry))
	h.logAudit(r, entry, "points.record")
}

func (h *PointsHandler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID      string `json:"staff_id"`
		StoreID      int    `json:"store_id"`
		PointsChange string `json:"points_change"`
		ReferenceID  string `json:"reference_id"`
		Note         string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	change, err := parseDecimal(req.PointsChange)
	if err != nil {
		http.Error(w, "invalid points_change", http.StatusBadRequest)
		return
	}
	entry, err := h.service.ManualAdjust(r.Context(), req.StaffID, req.StoreID, change, req.ReferenceID, req.Note)
	if err != nil {
		respondPointsError(w, err)
		return
	}
	writeJSON(w, entryView(entry))
	h.logAudit(r, entry, "points.adjust")
}

func (h *PointsHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	staffID := r.URL.Query().Get("staff_id")
	entries, err := h.service.History(r.Context(), staffID, queryInt(r, "limit"))
	if err != nil {
		respondPointsError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for i := range entries {
		out = append(out, entryView(&entries[i]))
	}
	writeJSON(w, out)
}

func (h *PointsHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), r.URL.Query().Get("staff_id"))
	if err != nil {
		respondPointsError(w, err)
		return
	}
	writeJSON(w, summaryView(summary))
}

func (h *PointsHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.Leaderboard(r.Context(), queryInt(r, "store_id"), queryInt(r, "limit"))
	if err != nil {
		respondPointsError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, summaryView(summary))
	}
	writeJSON(w, out)
}

func (h *PointsHandler) logAudit(r *http.Request, entry *points.PointEntry, action string) {
	if h.auditLogger == nil {
		return
	}
	identity := auth.IdentityFromContext(r.Context())
	meta, _ := json.Marshal(map[string]any{
		"staff_id": entry.StaffID,
		"reason":   entry.Reason,
		"points":   entry.PointsChange.StringFixed(2),
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:        audit.NewID(),
		Actor:     identity.StaffID,
		Role:      string(identity.Role),
		Action:    action,
		StoreID:   entry.StoreID,
		TargetID:  entry.ID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}.WithRequest(r))
}

func entryView(entry *points.PointEntry) map[string]any {
	return map[string]any{
		"entry_id":          entry.ID,
		"staff_id":          entry.StaffID,
		"store_id":          entry.StoreID,
		"reason":            entry.Reason,
		"category":          entry.Category,
		"points_change":     entry.PointsChange.StringFixed(2),
		"weight_handled_kg": entry.WeightHandledKg.StringFixed(3),
		"variance_kg":       entry.VarianceKg.StringFixed(3),
		"reference_id":      entry.ReferenceID,
		"created_at":        entry.CreatedAt.Format(time.RFC3339),
	}
}

func summaryView(summary points.StaffSummary) map[string]any {
	return map[string]any{
		"staff_id":      summary.StaffID,
		"balance":       summary.Balance.StringFixed(2),
		"entry_count":   summary.EntryCount,
		"fraud_entries": summary.FraudEntries,
	}
}

func respondPointsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, points.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, points.ErrUnknownReason),
		errors.Is(err, points.ErrMissingStaff),
		errors.Is(err, points.ErrMissingRef),
		errors.Is(err, points.ErrManualPoints),
		errors.Is(err, points.ErrZeroAdjustment):
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
