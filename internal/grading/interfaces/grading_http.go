package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"poultry-core/internal/audit"
	"poultry-core/internal/auth"
	gradeapp "poultry-core/internal/grading/application"
	grading "poultry-core/internal/grading/domain"
)

// GradingHandler handles grading APIs.
type GradingHandler struct {
	service     *gradeapp.Service
	auditLogger audit.Logger
}

// NewGradingHandler constructs a handler.
func NewGradingHandler(service *gradeapp.Service, auditLogger audit.Logger) (*GradingHandler, error) {
	if service == nil {
		return nil, errors.New("grading handler: nil service")
	}
	return &GradingHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles grading routes under /api/v1/grading.
func (h *GradingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/grading/generate" && r.Method == http.MethodPost {
		h.handleGenerate(w, r)
		return
	}
	if path == "/api/v1/grading" && r.Method == http.MethodGet {
		h.handleList(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/grading/") {
		rest := strings.TrimPrefix(path, "/api/v1/grading/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && r.Method == http.MethodGet {
			h.handleGet(w, r, parts[0], parts[1])
			return
		}
		if len(parts) == 3 && parts[2] == "lock" && r.Method == http.MethodPost {
			h.handleLock(w, r, parts[0], parts[1])
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *GradingHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StaffID string `json:"staff_id"`
		Month   string `json:"month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	month, err := parseMonth(req.Month)
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	snapshot, err := h.service.Generate(r.Context(), req.StaffID, month)
	if err != nil {
		respondGradingError(w, err)
		return
	}
	writeJSON(w, snapshotView(snapshot))
	h.logAudit(r, snapshot, "grading.generate")
}

func (h *GradingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r.URL.Query().Get("month"))
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	snapshots, err := h.service.ListByMonth(r.Context(), month)
	if err != nil {
		respondGradingError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(snapshots))
	for i := range snapshots {
		out = append(out, snapshotView(&snapshots[i]))
	}
	writeJSON(w, out)
}

func (h *GradingHandler) handleGet(w http.ResponseWriter, r *http.Request, staffID, monthValue string) {
	month, err := parseMonth(monthValue)
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	snapshot, err := h.service.Get(r.Context(), staffID, month)
	if err != nil {
		respondGradingError(w, err)
		return
	}
	writeJSON(w, snapshotView(snapshot))
}

func (h *GradingHandler) handleLock(w http.ResponseWriter, r *http.Request, staffID, monthValue string) {
	month, err := parseMonth(monthValue)
	if err != nil {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}
	snapshot, err := h.service.Lock(r.Context(), staffID, month)
	if err != nil {
		respondGradingError(w, err)
		return
	}
	writeJSON(w, snapshotView(snapshot))
	h.logAudit(r, snapshot, "grading.lock")
}

func (h *GradingHandler) logAudit(r *http.Request, snapshot *grading.PerformanceSnapshot, action string) {
	if h.auditLogger == nil {
		return
	}
	identity := auth.IdentityFromContext(r.Context())
	meta, _ := json.Marshal(map[string]any{
		"staff_id": snapshot.StaffID,
		"month":    snapshot.Month.Format("2006-01"),
		"grade":    snapshot.Grade,
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:        audit.NewID(),
		Actor:     identity.StaffID,
		Role:      string(identity.Role),
		Action:    action,
		TargetID:  snapshot.ID,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}.WithRequest(r))
}

func snapshotView(snapshot *grading.PerformanceSnapshot) map[string]any {
	return map[string]any{
		"snapshot_id":          snapshot.ID,
		"staff_id":             snapshot.StaffID,
		"month":                snapshot.Month.Format("2006-01"),
		"total_points":         snapshot.TotalPoints.StringFixed(2),
		"weight_handled_kg":    snapshot.WeightHandledKg.StringFixed(3),
		"positive_variance_kg": snapshot.PositiveVarianceKg.StringFixed(3),
		"negative_variance_kg": snapshot.NegativeVarianceKg.StringFixed(3),
		"zero_variance_days":   snapshot.ZeroVarianceDays,
		"score":                snapshot.Score.StringFixed(4),
		"grade":                snapshot.Grade,
		"bonus_amount":         snapshot.BonusAmount.StringFixed(2),
		"penalty_amount":       snapshot.PenaltyAmount.StringFixed(2),
		"net_incentive":        snapshot.NetIncentive.StringFixed(2),
		"config_version":       snapshot.ConfigVersion,
		"locked":               snapshot.Locked,
	}
}

func respondGradingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, grading.ErrSnapshotNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, grading.ErrSnapshotLocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, grading.ErrMissingStaff), errors.Is(err, grading.ErrInvalidMonth):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func parseMonth(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, grading.ErrInvalidMonth
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return time.Time{}, grading.ErrInvalidMonth
	}
	return t, nil
}
