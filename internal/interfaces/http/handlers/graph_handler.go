package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/neo4j"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
)

const defaultGraphLimit = 20

// LinkGraphReader is the read side of the approved-link crosswalk.
type LinkGraphReader interface {
	LinksForDiagnosis(ctx context.Context, code string, limit int) ([]neo4j.GraphLink, error)
	CoLinked(ctx context.Context, code string, limit int) ([]neo4j.CoLinkedDiagnosis, error)
}

// GraphHandler serves the history of approved links.
type GraphHandler struct {
	graph  LinkGraphReader
	logger logging.Logger
}

// NewGraphHandler creates a new GraphHandler.
func NewGraphHandler(graph LinkGraphReader, logger logging.Logger) *GraphHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GraphHandler{graph: graph, logger: logger.Named("http")}
}

// RegisterRoutes mounts the graph endpoints on r.
func (h *GraphHandler) RegisterRoutes(r chi.Router) {
	r.Get("/diagnoses/{code}/history", h.History)
}

// HistoryResponse lists recorded links and related diagnoses.
type HistoryResponse struct {
	Diagnosis string                    `json:"diagnosis"`
	Links     []neo4j.GraphLink         `json:"links"`
	CoLinked  []neo4j.CoLinkedDiagnosis `json:"co_linked"`
}

// History handles GET /api/v1/diagnoses/{code}/history?limit=
func (h *GraphHandler) History(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	limit, err := parseLimit(r)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if limit == 0 {
		limit = defaultGraphLimit
	}

	links, err := h.graph.LinksForDiagnosis(r.Context(), code, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	related, err := h.graph.CoLinked(r.Context(), code, limit)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}
	if links == nil {
		links = []neo4j.GraphLink{}
	}
	if related == nil {
		related = []neo4j.CoLinkedDiagnosis{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Diagnosis: code, Links: links, CoLinked: related})
}
