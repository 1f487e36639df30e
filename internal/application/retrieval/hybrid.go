package retrieval

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// HybridOptions tunes the ranker.  Zero fields take defaults.
type HybridOptions struct {
	// VectorThreshold is the minimum similarity for the vector path.
	VectorThreshold float64
	// RankDecay discounts lexical-only candidates by their lexical rank.
	RankDecay float64
	// VectorTimeout bounds the vector path; expiry degrades to lexical-only.
	VectorTimeout time.Duration
}

const (
	defaultVectorThreshold = 0.5
	defaultRankDecay       = 0.02
)

// SearchRequest is one hybrid search.
type SearchRequest struct {
	Vocabulary catalog.Vocabulary
	// Query is raw user text; the ranker normalizes it.
	Query      string
	Limit      int
	ActiveOnly bool
}

// SearchResult carries the ranked candidates and whether the vector path was
// skipped.  Degraded results have SourceKind lexical throughout.
type SearchResult struct {
	Candidates     []catalog.Candidate `json:"candidates"`
	Degraded       bool                `json:"degraded"`
	DegradedReason string              `json:"degraded_reason,omitempty"`
	// NormalizedQuery is the text actually matched.
	NormalizedQuery string `json:"normalized_query"`
}

// HybridRanker runs the lexical and vector matchers concurrently and merges
// their output.
type HybridRanker struct {
	normalizer *Normalizer
	lexical    *LexicalMatcher
	vector     *VectorMatcher
	opts       HybridOptions
	logger     logging.Logger
}

// NewHybridRanker wires the ranker.  A nil vector matcher makes every search
// lexical-only; a nil logger discards output.
func NewHybridRanker(normalizer *Normalizer, lexical *LexicalMatcher, vector *VectorMatcher, opts HybridOptions, logger logging.Logger) *HybridRanker {
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if vector == nil {
		vector = NewVectorMatcher(nil, nil)
	}
	if opts.VectorThreshold <= 0 {
		opts.VectorThreshold = defaultVectorThreshold
	}
	if opts.RankDecay <= 0 {
		opts.RankDecay = defaultRankDecay
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HybridRanker{
		normalizer: normalizer,
		lexical:    lexical,
		vector:     vector,
		opts:       opts,
		logger:     logger,
	}
}

// Normalizer returns the query normalizer.
func (h *HybridRanker) Normalizer() *Normalizer { return h.normalizer }

// Search runs both paths and merges them.  A lexical failure fails the
// search; a vector failure degrades it.  When ctx ends before both paths
// finish, Search returns a Canceled or Timeout error and no candidates.
func (h *HybridRanker) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	text := h.normalizer.Normalize(req.Query)
	res := &SearchResult{Candidates: []catalog.Candidate{}, NormalizedQuery: text}
	if text == "" || req.Limit <= 0 {
		return res, nil
	}
	q := Query{
		Vocabulary: req.Vocabulary,
		Text:       text,
		Limit:      req.Limit,
		ActiveOnly: req.ActiveOnly,
		Threshold:  h.opts.VectorThreshold,
	}

	var (
		lex    []catalog.Candidate
		vec    []catalog.Candidate
		vecErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lex, err = h.lexical.Match(gctx, q)
		return err
	})
	g.Go(func() error {
		vctx := gctx
		if h.opts.VectorTimeout > 0 {
			var cancel context.CancelFunc
			vctx, cancel = context.WithTimeout(gctx, h.opts.VectorTimeout)
			defer cancel()
		}
		vec, vecErr = h.vector.Match(vctx, q)
		return nil
	})
	err := g.Wait()

	if cerr := errors.FromContext(ctx); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}

	if vecErr != nil {
		res.Degraded = true
		res.DegradedReason = string(errors.GetCode(vecErr))
		vec = nil
		log := h.logger.WithContext(ctx).WithError(vecErr)
		if h.vector.Configured() {
			log.Warn("vector path unavailable, using lexical results only",
				logging.String("vocabulary", string(req.Vocabulary)))
		} else {
			log.Debug("vector path not configured",
				logging.String("vocabulary", string(req.Vocabulary)))
		}
	}

	res.Candidates = Merge(lex, vec, h.opts.RankDecay, req.Limit)
	return res, nil
}

// Merge combines lexical and vector candidates by code.  Candidates on both
// paths take max(lexical score, similarity) and kind hybrid; lexical-only
// candidates are discounted by rank decay; vector-only candidates keep their
// similarity.  The result is sorted by combined score descending, ties by
// catalog.TitleLess, and truncated to limit.
func Merge(lex, vec []catalog.Candidate, rankDecay float64, limit int) []catalog.Candidate {
	out := make([]catalog.Candidate, 0, len(lex)+len(vec))
	index := make(map[string]int, len(lex)+len(vec))

	for i, c := range lex {
		if _, dup := index[c.Entry.Code]; dup {
			continue
		}
		decay := 1 - rankDecay*float64(i)
		if decay < 0 {
			decay = 0
		}
		c.VectorSimilarity = nil
		c.CombinedScore = catalog.Clamp01(c.LexicalScore) * decay
		c.SourceKind = catalog.SourceLexical
		index[c.Entry.Code] = len(out)
		out = append(out, c)
	}

	for _, v := range vec {
		if v.VectorSimilarity == nil {
			continue
		}
		sim := catalog.Clamp01(*v.VectorSimilarity)
		if i, ok := index[v.Entry.Code]; ok {
			c := &out[i]
			if c.SourceKind == catalog.SourceHybrid {
				continue
			}
			c.VectorSimilarity = catalog.Float64Ptr(sim)
			combined := c.LexicalScore
			if sim > combined {
				combined = sim
			}
			c.CombinedScore = catalog.Clamp01(combined)
			c.SourceKind = catalog.SourceHybrid
			continue
		}
		index[v.Entry.Code] = len(out)
		out = append(out, catalog.Candidate{
			Entry:            v.Entry,
			VectorSimilarity: catalog.Float64Ptr(sim),
			CombinedScore:    sim,
			SourceKind:       catalog.SourceVector,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return rankBefore(out[i], out[j], out[i].CombinedScore, out[j].CombinedScore)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
