package retrieval

import (
	"context"
	"sort"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// Weights
// ---------------------------------------------------------------------------

// LexicalWeights are the per-predicate contributions to a lexical score.
type LexicalWeights struct {
	TitlePrefix           float64
	NormalizedTitlePrefix float64
	// Trigram is multiplied by the similarity.
	Trigram       float64
	CodePrefix    float64
	SynonymPrefix float64
}

// DefaultLexicalWeights returns 0.7 / 0.5 / 0.5×sim / 0.8 / 0.4.
func DefaultLexicalWeights() LexicalWeights {
	return LexicalWeights{
		TitlePrefix:           catalog.WeightTitlePrefix,
		NormalizedTitlePrefix: catalog.WeightNormalizedTitlePrefix,
		Trigram:               catalog.WeightTrigram,
		CodePrefix:            catalog.WeightCodePrefix,
		SynonymPrefix:         catalog.WeightSynonymPrefix,
	}
}

// LexicalOptions tunes a LexicalMatcher.  Zero fields take defaults.
type LexicalOptions struct {
	Weights          LexicalWeights
	TrigramThreshold float64
	// RecallFactor multiplies the limit sent to the source, so re-scoring
	// can promote entries the backend ranked low.
	RecallFactor int
}

const (
	defaultTrigramThreshold = 0.3
	defaultRecallFactor     = 3
)

// ---------------------------------------------------------------------------
// Matcher
// ---------------------------------------------------------------------------

// LexicalMatcher scores text matches over a LexicalSource.
type LexicalMatcher struct {
	source catalog.LexicalSource
	opts   LexicalOptions
}

// NewLexicalMatcher returns a matcher over source.
func NewLexicalMatcher(source catalog.LexicalSource, opts LexicalOptions) *LexicalMatcher {
	if opts.Weights == (LexicalWeights{}) {
		opts.Weights = DefaultLexicalWeights()
	}
	if opts.TrigramThreshold <= 0 {
		opts.TrigramThreshold = defaultTrigramThreshold
	}
	if opts.RecallFactor <= 0 {
		opts.RecallFactor = defaultRecallFactor
	}
	return &LexicalMatcher{source: source, opts: opts}
}

// Score returns the weighted lexical score of e for the normalized query and
// whether any predicate matched.
func (m *LexicalMatcher) Score(e catalog.CodeEntry, query string) (float64, bool) {
	if query == "" {
		return 0, false
	}
	w := m.opts.Weights
	score, matched := 0.0, false

	if catalog.HasWordPrefix(e.Title, query) {
		score += w.TitlePrefix
		matched = true
	}
	if e.NormalizedTitle != "" && catalog.HasWordPrefix(e.NormalizedTitle, query) {
		score += w.NormalizedTitlePrefix
		matched = true
	}

	if sim := catalog.TitleSimilarity(e, query); sim >= m.opts.TrigramThreshold {
		score += w.Trigram * sim
		matched = true
	}

	if catalog.CodeHasPrefix(e.Code, query) {
		score += w.CodePrefix
		matched = true
	}
	for _, syn := range e.Synonyms {
		if catalog.HasWordPrefix(syn, query) {
			score += w.SynonymPrefix
			matched = true
			break
		}
	}
	return score, matched
}

// Match recalls candidates from the source, re-scores them, drops entries
// that fail every predicate, deduplicates by code and returns at most
// q.Limit candidates ordered by score descending, then catalog.TitleLess.
// Source failures are reported as StorageUnavailable.
func (m *LexicalMatcher) Match(ctx context.Context, q Query) ([]catalog.Candidate, error) {
	if q.Text == "" || q.Limit <= 0 {
		return []catalog.Candidate{}, nil
	}
	entries, err := m.source.LexicalQuery(ctx, catalog.LexicalQuery{
		Vocabulary: q.Vocabulary,
		Text:       q.Text,
		Limit:      q.Limit * m.opts.RecallFactor,
		ActiveOnly: q.ActiveOnly,
	})
	if err != nil {
		if cerr := errors.FromContext(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, errors.StorageUnavailable(err, "lexical query failed").
			WithDetail(string(q.Vocabulary))
	}

	byCode := make(map[string]int, len(entries))
	out := make([]catalog.Candidate, 0, len(entries))
	for _, e := range entries {
		if q.ActiveOnly && !e.Active {
			continue
		}
		score, ok := m.Score(e, q.Text)
		if !ok {
			continue
		}
		if i, dup := byCode[e.Code]; dup {
			if score > out[i].LexicalScore {
				out[i].Entry, out[i].LexicalScore = e, score
				out[i].CombinedScore = catalog.Clamp01(score)
			}
			continue
		}
		byCode[e.Code] = len(out)
		out = append(out, catalog.Candidate{
			Entry:         e,
			LexicalScore:  score,
			CombinedScore: catalog.Clamp01(score),
			SourceKind:    catalog.SourceLexical,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return rankBefore(out[i], out[j], out[i].LexicalScore, out[j].LexicalScore)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
