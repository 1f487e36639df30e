package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/application/retrieval"
	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/handlers"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/middleware"
)

type stubService struct{}

func (stubService) SearchDiagnoses(context.Context, string, int) (*retrieval.SearchResult, error) {
	return &retrieval.SearchResult{}, nil
}

func (stubService) SearchProcedures(context.Context, string, int) (*retrieval.SearchResult, error) {
	return &retrieval.SearchResult{}, nil
}

func (stubService) LinkProcedures(context.Context, string, int) (*engine.LinkResult, error) {
	return &engine.LinkResult{}, nil
}

func (stubService) ReloadRules(context.Context) error     { return nil }
func (stubService) ApplyConfig(config.EngineConfig) error { return nil }
func (stubService) RuleTable() *linkage.Table             { return linkage.DefaultTable() }

func newTestRouter(t *testing.T, mutate func(*RouterConfig)) http.Handler {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "test"}, logging.NewNopLogger())
	require.NoError(t, err)
	cfg := RouterConfig{
		EngineHandler:    handlers.NewEngineHandler(stubService{}, nil),
		HealthHandler:    handlers.NewHealthHandler("test", nil),
		Metrics:          prometheus.NewEngineMetrics(collector),
		MetricsCollector: collector,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewRouter(cfg)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t, nil)
	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/api/v1/diagnoses/search?q=asthma", http.StatusOK},
		{"/api/v1/procedures/search?q=spirometry", http.StatusOK},
		{"/api/v1/diagnoses/J45.909/procedures", http.StatusOK},
		{"/api/v1/rules", http.StatusOK},
		{"/api/v1/diagnoses/J45.909/history", http.StatusNotFound},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, get(r, tt.path).Code, tt.path)
	}
}

func TestNewRouter_RequestIDHeader(t *testing.T) {
	w := get(newTestRouter(t, nil), "/healthz")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestNewRouter_MetricsRecordRoutePattern(t *testing.T) {
	r := newTestRouter(t, nil)
	get(r, "/api/v1/diagnoses/E11.9/procedures")

	body := get(r, "/metrics").Body.String()
	assert.Contains(t, body, `route="/api/v1/diagnoses/{code}/procedures"`)
}

func TestNewRouter_NilHandlers(t *testing.T) {
	r := NewRouter(RouterConfig{})
	assert.Equal(t, http.StatusNotFound, get(r, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/rules").Code)
}

func TestNewRouter_RateLimited(t *testing.T) {
	r := newTestRouter(t, func(c *RouterConfig) {
		c.RateLimiter = middleware.NewKeyedLimiter(0.001, 1, 0)
		c.RateLimit = middleware.DefaultRateLimitConfig()
	})
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/rules").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/api/v1/rules").Code)
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
}
