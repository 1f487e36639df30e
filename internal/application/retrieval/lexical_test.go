package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/snapshot"
	apperrors "github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func TestLexicalMatcher_Score(t *testing.T) {
	m := NewLexicalMatcher(&mockLexicalSource{}, LexicalOptions{})

	score, ok := m.Score(essentialHTN, "hyp")
	require.True(t, ok)
	assert.InDelta(t, 0.7, score, 1e-9, "title word prefix only; trigram below threshold")

	withNorm := essentialHTN
	withNorm.NormalizedTitle = "essential hypertension"
	score, _ = m.Score(withNorm, "hyp")
	assert.InDelta(t, 1.2, score, 1e-9)

	score, ok = m.Score(radiusFx, "s52.5")
	require.True(t, ok)
	assert.InDelta(t, 0.8, score, 1e-9)

	score, ok = m.Score(radiusFx, "broken")
	require.True(t, ok)
	assert.InDelta(t, 0.4, score, 1e-9)

	_, ok = m.Score(type2DM, "fracture radius")
	assert.False(t, ok)
	_, ok = m.Score(type2DM, "")
	assert.False(t, ok)
}

func TestLexicalMatcher_PrefixOutranksFuzzy(t *testing.T) {
	src := &mockLexicalSource{entries: []catalog.CodeEntry{hypCrisis, essentialHTN, type2DM}}
	m := NewLexicalMatcher(src, LexicalOptions{})

	got, err := m.Match(context.Background(), Query{Vocabulary: catalog.VocabularyDiagnosis, Text: "hypertension", Limit: 10})
	require.NoError(t, err)

	require.Len(t, got, 2, "entries failing every predicate are excluded")
	assert.Equal(t, "I10", got[0].Entry.Code)
	assert.Equal(t, "I16.9", got[1].Entry.Code)
	assert.Greater(t, got[0].LexicalScore, got[1].LexicalScore)
	assert.Less(t, got[1].LexicalScore, 0.5, "fuzzy-only match carries the trigram component alone")
	for _, c := range got {
		assert.Equal(t, catalog.SourceLexical, c.SourceKind)
		assert.Nil(t, c.VectorSimilarity)
	}
}

func TestLexicalMatcher_RecallDedupTieBreakAndLimit(t *testing.T) {
	src := &mockLexicalSource{entries: []catalog.CodeEntry{
		entry("B2", "Omega fracture"),
		entry("A1", "Alpha fracture"),
		entry("A1", "Alpha fracture"),
		entry("C3", "Delta fracture"),
	}}
	m := NewLexicalMatcher(src, LexicalOptions{RecallFactor: 4})

	got, err := m.Match(context.Background(), Query{Vocabulary: catalog.VocabularyDiagnosis, Text: "fracture", Limit: 2, ActiveOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 8, src.lastQuery.Limit)
	assert.True(t, src.lastQuery.ActiveOnly)
	assert.Equal(t, "fracture", src.lastQuery.Text)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha fracture", got[0].Entry.Title)
	assert.Equal(t, "Delta fracture", got[1].Entry.Title)
}

func TestLexicalMatcher_PrefixHitOutranksFuzzyRowsInRecallPool(t *testing.T) {
	store, err := snapshot.NewStore(&snapshot.Document{Version: "v1", Entries: []catalog.CodeEntry{
		entry("S52.501A", "Fracture of lower end of right radius, initial encounter for closed fracture"),
		entry("X1", "Refracture"),
		entry("X2", "Refractures"),
		entry("X3", "Refracture of bone"),
	}}, snapshot.Options{})
	require.NoError(t, err)
	m := NewLexicalMatcher(store, LexicalOptions{})

	got, err := m.Match(context.Background(), Query{Vocabulary: catalog.VocabularyDiagnosis, Text: "fracture", Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "S52.501A", got[0].Entry.Code)
	assert.InDelta(t, 0.7, got[0].LexicalScore, 1e-9)
}

func TestLexicalMatcher_ActiveOnlyFiltersInactive(t *testing.T) {
	inactive := entry("27446", "Arthroplasty, knee, condyle and plateau; medial compartment")
	inactive.Active = false
	src := &mockLexicalSource{entries: []catalog.CodeEntry{inactive}}
	m := NewLexicalMatcher(src, LexicalOptions{})

	got, err := m.Match(context.Background(), Query{Text: "arthroplasty", Limit: 5, ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = m.Match(context.Background(), Query{Text: "arthroplasty", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLexicalMatcher_Errors(t *testing.T) {
	src := &mockLexicalSource{lexicalQueryFn: func(context.Context, catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
		return nil, errors.New("connection refused")
	}}
	m := NewLexicalMatcher(src, LexicalOptions{})

	_, err := m.Match(context.Background(), Query{Text: "fracture", Limit: 5})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorageUnavailable))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src.lexicalQueryFn = func(ctx context.Context, _ catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
		return nil, ctx.Err()
	}
	_, err = m.Match(ctx, Query{Text: "fracture", Limit: 5})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeCanceled))
}

func TestLexicalMatcher_EmptyQuery(t *testing.T) {
	src := &mockLexicalSource{lexicalQueryFn: func(context.Context, catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
		t.Fatal("source must not be queried")
		return nil, nil
	}}
	m := NewLexicalMatcher(src, LexicalOptions{})

	got, err := m.Match(context.Background(), Query{Text: "", Limit: 5})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
