package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/application/retrieval"
	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/neo4j"
)

type mockService struct {
	searchDiagnosesFn  func(ctx context.Context, q string, limit int) (*retrieval.SearchResult, error)
	searchProceduresFn func(ctx context.Context, q string, limit int) (*retrieval.SearchResult, error)
	linkFn             func(ctx context.Context, code string, limit int) (*engine.LinkResult, error)
	reloadFn           func(ctx context.Context) error
	table              *linkage.Table
}

func (m *mockService) SearchDiagnoses(ctx context.Context, q string, limit int) (*retrieval.SearchResult, error) {
	return m.searchDiagnosesFn(ctx, q, limit)
}

func (m *mockService) SearchProcedures(ctx context.Context, q string, limit int) (*retrieval.SearchResult, error) {
	return m.searchProceduresFn(ctx, q, limit)
}

func (m *mockService) LinkProcedures(ctx context.Context, code string, limit int) (*engine.LinkResult, error) {
	return m.linkFn(ctx, code, limit)
}

func (m *mockService) ReloadRules(ctx context.Context) error {
	if m.reloadFn == nil {
		return nil
	}
	return m.reloadFn(ctx)
}

func (m *mockService) ApplyConfig(config.EngineConfig) error { return nil }

func (m *mockService) RuleTable() *linkage.Table {
	if m.table == nil {
		return linkage.DefaultTable()
	}
	return m.table
}

type mockGraph struct {
	linksFn    func(ctx context.Context, code string, limit int) ([]neo4j.GraphLink, error)
	coLinkedFn func(ctx context.Context, code string, limit int) ([]neo4j.CoLinkedDiagnosis, error)
}

func (m *mockGraph) LinksForDiagnosis(ctx context.Context, code string, limit int) ([]neo4j.GraphLink, error) {
	return m.linksFn(ctx, code, limit)
}

func (m *mockGraph) CoLinked(ctx context.Context, code string, limit int) ([]neo4j.CoLinkedDiagnosis, error) {
	if m.coLinkedFn == nil {
		return nil, nil
	}
	return m.coLinkedFn(ctx, code, limit)
}

type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

func serve(t *testing.T, h routeRegistrar, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api/v1", h.RegisterRoutes)
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
