package engine

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/CodeLink-Engine/internal/application/retrieval"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// maxFallbackTerms bounds the concurrent lexical queries of the fallback
// recall.
const maxFallbackTerms = 4

// reasonNoVectorCandidates marks a fallback taken because the vector path
// answered with nothing.
const reasonNoVectorCandidates = "no_vector_candidates"

func (s *serviceImpl) LinkProcedures(ctx context.Context, diagnosisCode string, limit int) (*LinkResult, error) {
	p := s.current.Load()
	start := time.Now()

	res, validated, err := s.link(ctx, p, normalizeCode(diagnosisCode), limit)

	approved := 0
	for _, c := range validated {
		if c.Status == catalog.LinkApproved {
			approved++
		}
		for _, r := range c.AppliedRules {
			s.metrics.RecordRuleFiring(r.RuleID, string(r.Category))
		}
	}
	s.metrics.RecordLink(approved, len(validated)-approved, time.Since(start), err)

	log := s.logger.WithContext(ctx).With(logging.String("diagnosis", diagnosisCode))
	if err != nil {
		s.metrics.RecordError("link", string(errors.GetCode(err)))
		log.WithError(err).Warn("procedure linkage failed")
		return nil, err
	}
	log.Debug("procedure linkage complete",
		logging.Int("evaluated", res.Evaluated),
		logging.Int("approved", approved),
		logging.Int("returned", len(res.Links)),
		logging.String("candidate_source", string(res.CandidateSource)),
		logging.String("rule_table", res.RuleTable),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (s *serviceImpl) link(ctx context.Context, p *pipelines, code string, limit int) (*LinkResult, []catalog.LinkCandidate, error) {
	if code == "" {
		return nil, nil, errors.InvalidParam("diagnosis code is required")
	}
	if err := errors.FromContext(ctx); err != nil {
		return nil, nil, err
	}

	dx, err := s.lookupDiagnosis(ctx, p, code)
	if err != nil {
		return nil, nil, err
	}

	pool, source, vecErr, err := s.recall(ctx, p, *dx)
	if err != nil {
		return nil, nil, err
	}

	lite := dx.WithoutEmbedding()
	validated := s.validator.Validate(lite, pool)
	links := s.ranker.Rank(validated, clampLimit(limit, p.cfg.Linkage.DefaultLimit, p.cfg.Linkage.MaxLimit))

	res := &LinkResult{
		Diagnosis:       lite,
		Links:           links,
		CandidateSource: source,
		RuleTable:       s.validator.Table().Version(),
		Evaluated:       len(validated),
	}
	if vecErr != nil {
		res.Degraded = true
		res.DegradedReason = string(errors.GetCode(vecErr))
	}

	if p.cfg.Linkage.RecordLinks && s.recorder != nil && len(links) > 0 {
		if err := s.recorder.RecordLinks(ctx, lite, links); err != nil {
			s.metrics.RecordError("link_recorder", string(errors.GetCode(err)))
			s.logger.WithContext(ctx).WithError(err).Warn("failed to record approved links",
				logging.String("diagnosis", lite.Code))
		}
	}
	return res, validated, nil
}

// lookupDiagnosis reads the diagnosis under the storage budget.  A missing
// code stays CodeNotFound; any other failure becomes StorageUnavailable.
func (s *serviceImpl) lookupDiagnosis(ctx context.Context, p *pipelines, code string) (*catalog.CodeEntry, error) {
	sctx, cancel := withTimeout(ctx, p.cfg.Search.StorageTimeout)
	defer cancel()

	dx, err := s.storage.GetByCode(sctx, catalog.VocabularyDiagnosis, code)
	switch {
	case err == nil && dx == nil:
		return nil, errors.New(errors.CodeCodeNotFound, "diagnosis code not found").WithDetail(code)
	case err == nil:
		return dx, nil
	case errors.IsNotFound(err):
		return nil, err
	}
	if cerr := errors.FromContext(ctx); cerr != nil {
		return nil, cerr
	}
	if errors.IsCode(err, errors.CodeStorageUnavailable) {
		return nil, err
	}
	return nil, errors.StorageUnavailable(err, "diagnosis lookup failed").WithDetail(code)
}

// recall builds the raw candidate pool.  The vector path runs first, using
// the stored diagnosis embedding when present.  When it fails or finds
// nothing, lexical queries over the diagnosis's salient terms run
// concurrently and their union is the pool.  vecErr reports why the vector
// path did not contribute; err is fatal.
func (s *serviceImpl) recall(ctx context.Context, p *pipelines, dx catalog.CodeEntry) (pool []linkage.RawCandidate, source catalog.SourceKind, vecErr error, err error) {
	q := retrieval.Query{
		Vocabulary: catalog.VocabularyProcedure,
		Text:       s.normalizer.Normalize(dx.Description()),
		Limit:      p.cfg.Linkage.CandidatePool,
		ActiveOnly: true,
		Threshold:  p.cfg.Linkage.VectorThreshold,
	}

	vctx, cancel := withTimeout(ctx, p.cfg.Search.VectorTimeout)
	var cands []catalog.Candidate
	if dx.HasEmbedding() {
		cands, vecErr = p.vector.MatchVector(vctx, q, dx.Embedding)
	} else {
		cands, vecErr = p.vector.Match(vctx, q)
	}
	cancel()

	if cerr := errors.FromContext(ctx); cerr != nil {
		return nil, "", nil, cerr
	}
	if vecErr == nil && len(cands) > 0 {
		pool = make([]linkage.RawCandidate, 0, len(cands))
		for _, c := range cands {
			pool = append(pool, linkage.RawCandidate{
				Procedure:  c.Entry.WithoutEmbedding(),
				Similarity: c.VectorSimilarity,
				SourceKind: catalog.SourceVector,
			})
		}
		return pool, catalog.SourceVector, nil, nil
	}

	reason := reasonNoVectorCandidates
	if vecErr != nil {
		reason = string(errors.GetCode(vecErr))
		log := s.logger.WithContext(ctx).WithError(vecErr)
		if p.vector.Configured() || dx.HasEmbedding() {
			log.Warn("vector recall unavailable, using lexical recall", logging.String("diagnosis", dx.Code))
		} else {
			log.Debug("vector recall not configured", logging.String("diagnosis", dx.Code))
		}
	}
	s.metrics.RecordLinkFallback(reason)

	pool, err = s.lexicalRecall(ctx, p, dx)
	if err != nil {
		return nil, "", nil, err
	}
	return pool, catalog.SourceLexical, vecErr, nil
}

func (s *serviceImpl) lexicalRecall(ctx context.Context, p *pipelines, dx catalog.CodeEntry) ([]linkage.RawCandidate, error) {
	terms := salientTerms(s.validator.Profiler().Diagnosis(dx), s.normalizer)
	if len(terms) == 0 {
		return []linkage.RawCandidate{}, nil
	}

	lctx, cancel := withTimeout(ctx, p.cfg.Search.StorageTimeout)
	defer cancel()

	results := make([][]catalog.Candidate, len(terms))
	g, gctx := errgroup.WithContext(lctx)
	for i, term := range terms {
		i, term := i, term
		g.Go(func() error {
			r, err := p.lexical.Match(gctx, retrieval.Query{
				Vocabulary: catalog.VocabularyProcedure,
				Text:       term,
				Limit:      p.cfg.Linkage.CandidatePool,
				ActiveOnly: true,
			})
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if cerr := errors.FromContext(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, storageDeadline(ctx, err)
	}

	seen := make(map[string]struct{})
	pool := make([]linkage.RawCandidate, 0)
	for _, r := range results {
		for _, c := range r {
			if _, dup := seen[c.Entry.Code]; dup {
				continue
			}
			seen[c.Entry.Code] = struct{}{}
			pool = append(pool, linkage.RawCandidate{
				Procedure:  c.Entry.WithoutEmbedding(),
				SourceKind: catalog.SourceLexical,
			})
		}
	}
	return pool, nil
}

var stopwords = map[string]struct{}{
	"and": {}, "closed": {}, "due": {}, "elsewhere": {}, "encounter": {}, "for": {},
	"from": {}, "initial": {}, "left": {}, "lower": {}, "open": {}, "other": {},
	"part": {}, "right": {}, "routine": {}, "site": {}, "specified": {},
	"subsequent": {}, "than": {}, "the": {}, "type": {}, "unspecified": {},
	"upper": {}, "with": {}, "without": {}, "classified": {}, "displaced": {},
	"nondisplaced": {}, "healing": {}, "end": {}, "shaft": {},
}

// salientTerms picks the lexical fallback queries for a diagnosis: its
// anatomical sites, the word fracture for fractures, then the leading content
// words of its title.
func salientTerms(p linkage.Profile, n *retrieval.Normalizer) []string {
	terms := make([]string, 0, maxFallbackTerms)
	seen := make(map[string]struct{})
	add := func(t string) {
		if len(terms) >= maxFallbackTerms || t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	for _, tag := range p.Sites {
		add(strings.ReplaceAll(string(tag), "_", " "))
	}
	if p.HasClass(linkage.ClassFracture) {
		add("fracture")
	}
	for _, w := range strings.Fields(n.Normalize(p.Entry.Title)) {
		w = strings.Trim(w, ".-")
		if len(w) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		add(w)
	}
	return terms
}
