package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// EngineHandler serves code search, procedure linkage and rule table
// inspection.
type EngineHandler struct {
	svc    engine.Service
	logger logging.Logger
}

// NewEngineHandler creates a new EngineHandler.
func NewEngineHandler(svc engine.Service, logger logging.Logger) *EngineHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EngineHandler{svc: svc, logger: logger.Named("http")}
}

// RegisterRoutes mounts the engine endpoints on r.
func (h *EngineHandler) RegisterRoutes(r chi.Router) {
	r.Get("/diagnoses/search", h.SearchDiagnoses)
	r.Get("/diagnoses/{code}/procedures", h.LinkProcedures)
	r.Get("/procedures/search", h.SearchProcedures)
	r.Get("/rules", h.GetRuleTable)
	r.Post("/rules/reload", h.ReloadRules)
}

// SearchDiagnoses handles GET /api/v1/diagnoses/search?q=&limit=
func (h *EngineHandler) SearchDiagnoses(w http.ResponseWriter, r *http.Request) {
	q, limit, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SearchDiagnoses(r.Context(), q, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchProcedures handles GET /api/v1/procedures/search?q=&limit=
func (h *EngineHandler) SearchProcedures(w http.ResponseWriter, r *http.Request) {
	q, limit, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SearchProcedures(r.Context(), q, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LinkProcedures handles GET /api/v1/diagnoses/{code}/procedures?limit=
func (h *EngineHandler) LinkProcedures(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		writeAppError(w, r, h.logger, errors.InvalidParam("diagnosis code is required"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.LinkProcedures(r.Context(), code, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRuleTable handles GET /api/v1/rules
func (h *EngineHandler) GetRuleTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.RuleTable().Spec())
}

// ReloadRulesResponse reports the table active after a reload.
type ReloadRulesResponse struct {
	Version string `json:"version"`
	Rules   int    `json:"rules"`
}

// ReloadRules handles POST /api/v1/rules/reload.  A failed reload keeps the
// active table and reports the error.
func (h *EngineHandler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ReloadRules(r.Context()); err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	t := h.svc.RuleTable()
	writeJSON(w, http.StatusOK, ReloadRulesResponse{Version: t.Version(), Rules: len(t.Rules())})
}

func (h *EngineHandler) searchParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	limit, err := parseLimit(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return "", 0, false
	}
	return r.URL.Query().Get("q"), limit, true
}
