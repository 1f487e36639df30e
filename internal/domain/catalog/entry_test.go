package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVocabulary(t *testing.T) {
	for in, want := range map[string]Vocabulary{
		"diagnosis":  VocabularyDiagnosis,
		" ICD10 ":    VocabularyDiagnosis,
		"procedures": VocabularyProcedure,
		"CPT":        VocabularyProcedure,
	} {
		got, err := ParseVocabulary(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.True(t, got.Valid())
	}
	_, err := ParseVocabulary("loinc")
	assert.Error(t, err)
	assert.False(t, Vocabulary("loinc").Valid())
}

func TestCodeEntry_Description(t *testing.T) {
	e := CodeEntry{
		Title:      "Closed fracture of shaft of RADIUS",
		Synonyms:   []string{"Broken forearm"},
		Chapter:    "Injury",
		Embedding:  []float32{0.1},
		Vocabulary: VocabularyDiagnosis,
	}
	d := e.Description()
	assert.Contains(t, d, "radius")
	assert.Contains(t, d, "broken forearm")
	assert.Contains(t, d, "injury")
	assert.True(t, e.HasEmbedding())
	assert.False(t, e.WithoutEmbedding().HasEmbedding())
	assert.True(t, e.HasEmbedding(), "copy must not alias the original")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.4, Clamp01(0.4))
	assert.Equal(t, 0.95, Clamp(1.2, 0, 0.95))
	assert.Equal(t, 0.3, *Float64Ptr(0.3))
}

type stubStorage struct {
	name string
}

func (s stubStorage) LexicalQuery(context.Context, LexicalQuery) ([]CodeEntry, error) {
	return []CodeEntry{{Code: s.name}}, nil
}

func (s stubStorage) VectorQuery(context.Context, VectorQuery) ([]ScoredEntry, error) {
	return []ScoredEntry{{Entry: CodeEntry{Code: s.name}}}, nil
}

func (s stubStorage) GetByCode(_ context.Context, _ Vocabulary, code string) (*CodeEntry, error) {
	return &CodeEntry{Code: s.name + ":" + code}, nil
}

func (s stubStorage) GetByCodes(context.Context, Vocabulary, []string) ([]CodeEntry, error) {
	return []CodeEntry{{Code: s.name}}, nil
}

func TestCompose_RoutesQueries(t *testing.T) {
	ctx := context.Background()
	primary := stubStorage{name: "primary"}

	assert.Equal(t, Storage(primary), Compose(primary, nil, nil))

	s := Compose(primary, stubStorage{name: "lexical"}, stubStorage{name: "vector"})
	lex, err := s.LexicalQuery(ctx, LexicalQuery{})
	require.NoError(t, err)
	assert.Equal(t, "lexical", lex[0].Code)

	vec, err := s.VectorQuery(ctx, VectorQuery{})
	require.NoError(t, err)
	assert.Equal(t, "vector", vec[0].Entry.Code)

	e, err := s.GetByCode(ctx, VocabularyDiagnosis, "I10")
	require.NoError(t, err)
	assert.Equal(t, "primary:I10", e.Code)

	onlyVec := Compose(primary, nil, stubStorage{name: "vector"})
	lex, err = onlyVec.LexicalQuery(ctx, LexicalQuery{})
	require.NoError(t, err)
	assert.Equal(t, "primary", lex[0].Code)
}
