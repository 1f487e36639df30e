package retrieval

import (
	"context"
	"sort"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// VectorMatcher finds nearest neighbours by embedding similarity.
type VectorMatcher struct {
	provider catalog.EmbeddingProvider
	source   catalog.VectorSource
}

// NewVectorMatcher returns a matcher.  A nil provider is allowed; Match then
// always reports EmbeddingUnavailable while MatchVector keeps working.
func NewVectorMatcher(provider catalog.EmbeddingProvider, source catalog.VectorSource) *VectorMatcher {
	return &VectorMatcher{provider: provider, source: source}
}

// Configured reports whether an embedding provider is wired in.
func (m *VectorMatcher) Configured() bool { return m.provider != nil }

// Match embeds q.Text and queries the vector source.  Any provider failure
// is reported as EmbeddingUnavailable.
func (m *VectorMatcher) Match(ctx context.Context, q Query) ([]catalog.Candidate, error) {
	if m.provider == nil {
		return nil, errors.EmbeddingUnavailable(nil, "embedding provider not configured")
	}
	vec, err := m.provider.Embed(ctx, q.Text)
	if err != nil {
		if cerr := errors.FromContext(ctx); cerr != nil {
			return nil, errors.EmbeddingUnavailable(cerr, "embedding request aborted")
		}
		return nil, errors.EmbeddingUnavailable(err, "embedding request failed")
	}
	if len(vec) == 0 {
		return nil, errors.EmbeddingUnavailable(nil, "embedding provider returned an empty vector")
	}
	return m.MatchVector(ctx, q, vec)
}

// MatchVector queries the vector source with a precomputed embedding.
// Results carry VectorSimilarity and SourceKind vector, ordered by
// similarity descending, then title, then code.
func (m *VectorMatcher) MatchVector(ctx context.Context, q Query, vec []float32) ([]catalog.Candidate, error) {
	if q.Limit <= 0 {
		return []catalog.Candidate{}, nil
	}
	if m.source == nil {
		return nil, errors.New(errors.CodeVectorSearchFailed, "vector source not configured")
	}
	rows, err := m.source.VectorQuery(ctx, catalog.VectorQuery{
		Vocabulary: q.Vocabulary,
		Embedding:  vec,
		Threshold:  q.Threshold,
		Limit:      q.Limit,
		ActiveOnly: q.ActiveOnly,
	})
	if err != nil {
		if cerr := errors.FromContext(ctx); cerr != nil {
			return nil, errors.Wrap(cerr, errors.CodeVectorSearchFailed, "vector query aborted")
		}
		return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "vector query failed")
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]catalog.Candidate, 0, len(rows))
	for _, r := range rows {
		if r.Similarity < q.Threshold {
			continue
		}
		if q.ActiveOnly && !r.Entry.Active {
			continue
		}
		if _, dup := seen[r.Entry.Code]; dup {
			continue
		}
		seen[r.Entry.Code] = struct{}{}
		s := catalog.Clamp01(r.Similarity)
		out = append(out, catalog.Candidate{
			Entry:            r.Entry,
			VectorSimilarity: catalog.Float64Ptr(s),
			CombinedScore:    s,
			SourceKind:       catalog.SourceVector,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankBefore(out[i], out[j], *out[i].VectorSimilarity, *out[j].VectorSimilarity)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
