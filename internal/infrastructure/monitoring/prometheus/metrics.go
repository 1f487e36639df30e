package prometheus

import (
	"strconv"
	"time"
)

// EngineMetrics holds every metric family the engine records.  All Record
// methods are safe on a nil receiver, so callers need no metrics-enabled
// checks.
type EngineMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// Search
	SearchRequestsTotal CounterVec
	SearchDuration      HistogramVec
	SearchResultCount   HistogramVec
	SearchDegradedTotal CounterVec

	// Linkage
	LinkRequestsTotal   CounterVec
	LinkDuration        HistogramVec
	LinkCandidatesTotal CounterVec
	LinkFallbackTotal   CounterVec
	RuleFiringsTotal    CounterVec

	// Collaborators
	EmbeddingRequestsTotal CounterVec
	EmbeddingDuration      HistogramVec
	CacheAccessTotal       CounterVec
	StorageQueryDuration   HistogramVec

	// Refresh and health
	CatalogRefreshTotal CounterVec
	RuleTableRules      GaugeVec
	HealthCheckStatus   GaugeVec
	ErrorsTotal         CounterVec
}

// Default buckets.
var (
	DefaultLatencyBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultStorageBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultEmbeddingBuckets = []float64{.05, .1, .25, .5, 1, 2, 5, 10}
	DefaultResultBuckets    = []float64{0, 1, 5, 10, 20, 50, 100}
)

// NewEngineMetrics registers all engine metric families on collector.
func NewEngineMetrics(collector MetricsCollector) *EngineMetrics {
	m := &EngineMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultLatencyBuckets, "method", "route")

	m.SearchRequestsTotal = collector.RegisterCounter("search_requests_total", "Catalog searches", "vocabulary", "outcome")
	m.SearchDuration = collector.RegisterHistogram("search_duration_seconds", "Catalog search duration", DefaultLatencyBuckets, "vocabulary")
	m.SearchResultCount = collector.RegisterHistogram("search_result_count", "Candidates returned per search", DefaultResultBuckets, "vocabulary")
	m.SearchDegradedTotal = collector.RegisterCounter("search_degraded_total", "Searches answered without the vector path", "vocabulary", "reason")

	m.LinkRequestsTotal = collector.RegisterCounter("link_requests_total", "Procedure linkage requests", "outcome")
	m.LinkDuration = collector.RegisterHistogram("link_duration_seconds", "Procedure linkage duration", DefaultLatencyBuckets)
	m.LinkCandidatesTotal = collector.RegisterCounter("link_candidates_total", "Validated link candidates", "status")
	m.LinkFallbackTotal = collector.RegisterCounter("link_fallback_total", "Linkage requests that used lexical candidate recall", "reason")
	m.RuleFiringsTotal = collector.RegisterCounter("rule_firings_total", "Clinical rule firings", "rule_id", "category")

	m.EmbeddingRequestsTotal = collector.RegisterCounter("embedding_requests_total", "Embedding provider calls", "outcome")
	m.EmbeddingDuration = collector.RegisterHistogram("embedding_duration_seconds", "Embedding provider latency", DefaultEmbeddingBuckets)
	m.CacheAccessTotal = collector.RegisterCounter("cache_access_total", "Cache lookups", "cache", "result")
	m.StorageQueryDuration = collector.RegisterHistogram("storage_query_duration_seconds", "Catalog storage query duration", DefaultStorageBuckets, "backend", "operation")

	m.CatalogRefreshTotal = collector.RegisterCounter("catalog_refresh_total", "Snapshot and rule table reloads", "kind", "outcome")
	m.RuleTableRules = collector.RegisterGauge("rule_table_rules", "Rules in the active table", "version")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPRequest records one served request.
func (m *EngineMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordSearch records a finished search.  degradedReason is empty when the
// vector path contributed.
func (m *EngineMetrics) RecordSearch(vocabulary string, results int, degradedReason string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(vocabulary, outcome(err)).Inc()
	m.SearchDuration.WithLabelValues(vocabulary).Observe(d.Seconds())
	if err != nil {
		return
	}
	m.SearchResultCount.WithLabelValues(vocabulary).Observe(float64(results))
	if degradedReason != "" {
		m.SearchDegradedTotal.WithLabelValues(vocabulary, degradedReason).Inc()
	}
}

// RecordLink records a finished linkage request.
func (m *EngineMetrics) RecordLink(approved, rejected int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LinkRequestsTotal.WithLabelValues(outcome(err)).Inc()
	m.LinkDuration.WithLabelValues().Observe(d.Seconds())
	if err != nil {
		return
	}
	m.LinkCandidatesTotal.WithLabelValues("approved").Add(float64(approved))
	m.LinkCandidatesTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordLinkFallback counts a lexical recall fallback.
func (m *EngineMetrics) RecordLinkFallback(reason string) {
	if m == nil {
		return
	}
	m.LinkFallbackTotal.WithLabelValues(reason).Inc()
}

// RecordRuleFiring counts one rule application.
func (m *EngineMetrics) RecordRuleFiring(ruleID, category string) {
	if m == nil {
		return
	}
	m.RuleFiringsTotal.WithLabelValues(ruleID, category).Inc()
}

// RecordEmbedding records one provider call.
func (m *EngineMetrics) RecordEmbedding(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmbeddingRequestsTotal.WithLabelValues(outcome(err)).Inc()
	m.EmbeddingDuration.WithLabelValues().Observe(d.Seconds())
}

// RecordCacheAccess counts a cache hit or miss.
func (m *EngineMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccessTotal.WithLabelValues(cache, result).Inc()
}

// RecordStorageQuery records a backend query.
func (m *EngineMetrics) RecordStorageQuery(backend, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StorageQueryDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues(backend, operation+"_failed").Inc()
	}
}

// RecordRefresh counts a snapshot or rule table reload.
func (m *EngineMetrics) RecordRefresh(kind string, err error) {
	if m == nil {
		return
	}
	m.CatalogRefreshTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// SetRuleTable publishes the active rule table size under its version.
func (m *EngineMetrics) SetRuleTable(version string, rules int) {
	if m == nil {
		return
	}
	m.RuleTableRules.WithLabelValues(version).Set(float64(rules))
}

// SetHealth publishes a component health check result.
func (m *EngineMetrics) SetHealth(component string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// RecordError counts an error by component and code.
func (m *EngineMetrics) RecordError(component, code string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
