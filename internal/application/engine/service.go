// Package engine is the application service in front of the retrieval and
// linkage pipelines.  It owns limit handling, timeouts, metrics and logging;
// scoring lives in the retrieval and linkage packages.
package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/turtacn/CodeLink-Engine/internal/application/retrieval"
	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/anatomy"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// Service is the search and linkage API exposed to the HTTP and CLI layers.
type Service interface {
	// SearchDiagnoses ranks diagnosis codes for free text.
	SearchDiagnoses(ctx context.Context, query string, limit int) (*retrieval.SearchResult, error)
	// SearchProcedures ranks active procedure codes for free text.
	SearchProcedures(ctx context.Context, query string, limit int) (*retrieval.SearchResult, error)
	// LinkProcedures returns approved procedures for a confirmed diagnosis.
	LinkProcedures(ctx context.Context, diagnosisCode string, limit int) (*LinkResult, error)
	// ReloadRules re-reads the rule source and swaps the active table.
	ReloadRules(ctx context.Context) error
	// ApplyConfig swaps thresholds and limits without a restart.
	ApplyConfig(cfg config.EngineConfig) error
	// RuleTable returns the active rule table.
	RuleTable() *linkage.Table
}

// LinkResult is the response of LinkProcedures.
type LinkResult struct {
	Diagnosis catalog.CodeEntry       `json:"diagnosis"`
	Links     []catalog.LinkCandidate `json:"links"`
	// CandidateSource is vector, or lexical when the fallback recall ran.
	CandidateSource catalog.SourceKind `json:"candidate_source"`
	Degraded        bool               `json:"degraded"`
	DegradedReason  string             `json:"degraded_reason,omitempty"`
	RuleTable       string             `json:"rule_table"`
	Evaluated       int                `json:"evaluated"`
}

// Deps holds the collaborators of the service.  Storage is required; every
// other field is optional.
type Deps struct {
	Storage  catalog.Storage
	Embedder catalog.EmbeddingProvider
	// Recorder receives approved links when Config.Linkage.RecordLinks is set.
	Recorder   catalog.LinkRecorder
	RuleSource linkage.RuleSource
	Extractor  *anatomy.Extractor
	Normalizer *retrieval.Normalizer
	Logger     logging.Logger
	Metrics    *prometheus.EngineMetrics
	Config     config.EngineConfig
}

// pipelines is the config-dependent part of the service, rebuilt on
// ApplyConfig and swapped atomically.
type pipelines struct {
	cfg     config.EngineConfig
	search  *retrieval.HybridRanker
	lexical *retrieval.LexicalMatcher
	vector  *retrieval.VectorMatcher
}

type serviceImpl struct {
	storage    catalog.Storage
	embedder   catalog.EmbeddingProvider
	recorder   catalog.LinkRecorder
	rules      linkage.RuleSource
	normalizer *retrieval.Normalizer
	validator  *linkage.Validator
	ranker     *linkage.Ranker
	logger     logging.Logger
	metrics    *prometheus.EngineMetrics

	current atomic.Pointer[pipelines]
}

// NewService wires the engine.  The built-in rule table is active until
// ReloadRules succeeds.
func NewService(deps Deps) (Service, error) {
	if deps.Storage == nil {
		return nil, errors.New(errors.CodeInvalidParam, "engine: storage is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = retrieval.NewNormalizer(nil)
	}
	if deps.RuleSource == nil {
		deps.RuleSource = linkage.StaticSource{}
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = anatomy.NewExtractor()
	}
	profiler := linkage.NewDefaultProfiler(extractor)

	s := &serviceImpl{
		storage:    deps.Storage,
		embedder:   deps.Embedder,
		recorder:   deps.Recorder,
		rules:      deps.RuleSource,
		normalizer: deps.Normalizer,
		validator:  linkage.NewValidator(profiler, linkage.DefaultTable(), linkage.Thresholds{}),
		ranker:     linkage.NewRanker(profiler, nil),
		logger:     deps.Logger.Named("engine"),
		metrics:    deps.Metrics,
	}
	if err := s.ApplyConfig(deps.Config); err != nil {
		return nil, err
	}
	s.metrics.SetRuleTable(s.validator.Table().Version(), len(s.validator.Table().Rules()))
	return s, nil
}

func (s *serviceImpl) ApplyConfig(cfg config.EngineConfig) error {
	config.ApplyEngineDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeValidation, "invalid engine configuration")
	}

	lexical := retrieval.NewLexicalMatcher(s.storage, retrieval.LexicalOptions{
		TrigramThreshold: cfg.Search.TrigramThreshold,
		RecallFactor:     cfg.Search.RecallFactor,
	})
	vector := retrieval.NewVectorMatcher(s.embedder, s.storage)
	p := &pipelines{
		cfg:     cfg,
		lexical: lexical,
		vector:  vector,
		search: retrieval.NewHybridRanker(s.normalizer, lexical, vector, retrieval.HybridOptions{
			VectorThreshold: cfg.Search.VectorThreshold,
			RankDecay:       cfg.Search.RankDecay,
			VectorTimeout:   cfg.Search.VectorTimeout,
		}, s.logger),
	}
	s.validator.SetThresholds(linkage.Thresholds{
		Approval: cfg.Linkage.ApprovalThreshold,
		Ceiling:  cfg.Linkage.ConfidenceCeiling,
		Baseline: cfg.Linkage.BaselineScore,
	})
	s.current.Store(p)
	return nil
}

func (s *serviceImpl) ReloadRules(ctx context.Context) error {
	table, err := s.rules.LoadRules(ctx)
	s.metrics.RecordRefresh("rules", err)
	if err != nil {
		s.logger.WithContext(ctx).Error("rule table reload failed, keeping the active table",
			logging.Err(err), logging.String("active_version", s.validator.Table().Version()))
		return err
	}
	s.validator.SetTable(table)
	s.metrics.SetRuleTable(table.Version(), len(table.Rules()))
	s.logger.WithContext(ctx).Info("rule table loaded",
		logging.String("version", table.Version()), logging.Int("rules", len(table.Rules())))
	return nil
}

func (s *serviceImpl) RuleTable() *linkage.Table { return s.validator.Table() }

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func (s *serviceImpl) SearchDiagnoses(ctx context.Context, query string, limit int) (*retrieval.SearchResult, error) {
	return s.search(ctx, catalog.VocabularyDiagnosis, query, limit, false)
}

func (s *serviceImpl) SearchProcedures(ctx context.Context, query string, limit int) (*retrieval.SearchResult, error) {
	return s.search(ctx, catalog.VocabularyProcedure, query, limit, true)
}

func (s *serviceImpl) search(ctx context.Context, vocab catalog.Vocabulary, query string, limit int, activeOnly bool) (*retrieval.SearchResult, error) {
	p := s.current.Load()
	start := time.Now()

	sctx, cancel := withTimeout(ctx, p.cfg.Search.StorageTimeout)
	defer cancel()

	res, err := p.search.Search(sctx, retrieval.SearchRequest{
		Vocabulary: vocab,
		Query:      query,
		Limit:      clampLimit(limit, p.cfg.Search.DefaultLimit, p.cfg.Search.MaxLimit),
		ActiveOnly: activeOnly,
	})
	err = storageDeadline(ctx, err)

	var n int
	var reason string
	if res != nil {
		n, reason = len(res.Candidates), res.DegradedReason
	}
	s.metrics.RecordSearch(string(vocab), n, reason, time.Since(start), err)
	if err != nil {
		s.metrics.RecordError("search", string(errors.GetCode(err)))
		s.logger.WithContext(ctx).WithError(err).Warn("search failed",
			logging.String("vocabulary", string(vocab)))
		return nil, err
	}
	s.logger.WithContext(ctx).Debug("search complete",
		logging.String("vocabulary", string(vocab)),
		logging.Int("results", n),
		logging.Bool("degraded", res.Degraded),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// clampLimit maps a non-positive limit to def and caps it at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// storageDeadline turns a timeout caused by the engine's own storage budget
// into StorageUnavailable.  A deadline set by the caller stays a Timeout.
func storageDeadline(caller context.Context, err error) error {
	if err == nil || caller.Err() != nil {
		return err
	}
	if errors.IsCode(err, errors.CodeTimeout) || errors.IsCode(err, errors.CodeCanceled) {
		return errors.StorageUnavailable(err, "catalog storage timed out")
	}
	return err
}

// normalizeCode trims and upper-cases a user-supplied code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
