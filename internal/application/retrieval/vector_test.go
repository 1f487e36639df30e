package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	apperrors "github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func TestVectorMatcher_ProviderFailures(t *testing.T) {
	src := &mockVectorSource{}

	_, err := NewVectorMatcher(nil, src).Match(context.Background(), Query{Text: "x", Limit: 5})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingUnavailable))

	failing := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("503 from provider")
	}}
	_, err = NewVectorMatcher(failing, src).Match(context.Background(), Query{Text: "x", Limit: 5})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingUnavailable))

	empty := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) { return nil, nil }}
	_, err = NewVectorMatcher(empty, src).Match(context.Background(), Query{Text: "x", Limit: 5})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingUnavailable))
}

func TestVectorMatcher_MatchVector(t *testing.T) {
	inactive := type2DM
	inactive.Active = false
	src := &mockVectorSource{rows: []catalog.ScoredEntry{
		{Entry: hypCrisis, Similarity: 0.72},
		{Entry: essentialHTN, Similarity: 1.0000001},
		{Entry: radiusFx, Similarity: 0.72},
		{Entry: inactive, Similarity: 0.9},
		{Entry: type2DM, Similarity: 0.3},
	}}
	m := NewVectorMatcher(&mockEmbedder{}, src)

	got, err := m.Match(context.Background(), Query{
		Vocabulary: catalog.VocabularyProcedure, Text: "hypertension", Limit: 10, Threshold: 0.4, ActiveOnly: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.4, src.lastQuery.Threshold)
	assert.True(t, src.lastQuery.ActiveOnly)
	assert.Equal(t, catalog.VocabularyProcedure, src.lastQuery.Vocabulary)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, src.lastQuery.Embedding)

	require.Len(t, got, 3)
	assert.Equal(t, "I10", got[0].Entry.Code)
	assert.Equal(t, 1.0, *got[0].VectorSimilarity, "similarity is clamped")
	// Equal similarity falls back to title order.
	assert.Equal(t, "I16.9", got[1].Entry.Code)
	assert.Equal(t, "S52.501A", got[2].Entry.Code)
	for _, c := range got {
		assert.Equal(t, catalog.SourceVector, c.SourceKind)
		assert.Equal(t, *c.VectorSimilarity, c.CombinedScore)
	}
}

func TestVectorMatcher_SourceError(t *testing.T) {
	src := &mockVectorSource{vectorQueryFn: func(context.Context, catalog.VectorQuery) ([]catalog.ScoredEntry, error) {
		return nil, errors.New("index offline")
	}}
	_, err := NewVectorMatcher(&mockEmbedder{}, src).MatchVector(context.Background(), Query{Limit: 3}, []float32{1})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeVectorSearchFailed))

	_, err = NewVectorMatcher(nil, nil).MatchVector(context.Background(), Query{Limit: 3}, []float32{1})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeVectorSearchFailed))
}

func TestVectorMatcher_Configured(t *testing.T) {
	assert.False(t, NewVectorMatcher(nil, &mockVectorSource{}).Configured())
	assert.True(t, NewVectorMatcher(&mockEmbedder{}, &mockVectorSource{}).Configured())
}
