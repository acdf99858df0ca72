package api

import (
	"net/http"
	"strconv"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

const defaultBoardLimit = 10

// AnalyticsHandler serves the admin risk board.
type AnalyticsHandler struct {
	deps   AnalyticsService
	logger logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps AnalyticsService, log logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps, logger: log}
}

// HandleRiskBoard handles GET /api/analytics/risk?limit=N. Admins only.
// limit defaults to 10; the service caps it.
func (h *AnalyticsHandler) HandleRiskBoard(w http.ResponseWriter, r *http.Request) {
	const op = "api.risk_board"
	ctx := r.Context()

	if _, err := requireRole(r, op, model.RoleAdmin); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	n := defaultBoardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(ctx, w, h.logger, model.NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}

	entries, err := h.deps.RiskBoard(ctx, n)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleSessionRisk handles GET /api/analytics/risk/{id}. Admins only.
func (h *AnalyticsHandler) HandleSessionRisk(w http.ResponseWriter, r *http.Request) {
	const op = "api.session_risk"
	ctx := r.Context()

	if _, err := requireRole(r, op, model.RoleAdmin); err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	id, err := pathID(r, op)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	entry, err := h.deps.SessionRisk(ctx, id)
	if err != nil {
		writeError(ctx, w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
