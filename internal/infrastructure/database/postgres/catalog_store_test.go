package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// ---------------------------------------------------------------------------
// fake querier
// ---------------------------------------------------------------------------

type fakeRow struct{ err error }

func (r fakeRow) Scan(...any) error { return r.err }

type fakeBatchResults struct {
	execErr error
	execs   int
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	b.execs++
	return pgconn.CommandTag{}, b.execErr
}
func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, fmt.Errorf("not supported") }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return fakeRow{err: fmt.Errorf("not supported")} }
func (b *fakeBatchResults) Close() error             { return nil }

type fakeQuerier struct {
	queryErr error
	rowErr   error
	execErr  error
	batchErr error

	lastSQL  string
	lastArgs []any
	batch    *pgx.Batch
	results  *fakeBatchResults
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.lastSQL, f.lastArgs = sql, args
	return nil, f.queryErr
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	return fakeRow{err: f.rowErr}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeQuerier) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	f.results = &fakeBatchResults{execErr: f.batchErr}
	return f.results
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\x`, escapeLike(`c:\x`))
	assert.Equal(t, "fracture", escapeLike("fracture"))
}

func TestWordPrefixPattern(t *testing.T) {
	assert.Equal(t, `(^|[^[:alnum:]])primary`, wordPrefixPattern("primary"))
	assert.Equal(t, `(^|[^[:alnum:]])s52\.5`, wordPrefixPattern("s52.5"))
	assert.Equal(t, `(^|[^[:alnum:]])a\(b\)`, wordPrefixPattern("a(b)"))
}

func TestCodePattern(t *testing.T) {
	assert.Equal(t, "S52501A%", codePattern("s52.501a"))
	assert.Equal(t, "I10%", codePattern(" I10 "))
	assert.Equal(t, "", codePattern("radius fracture"))
	assert.Equal(t, "", codePattern("  "))
	assert.Equal(t, "", codePattern("."))
}

func TestBuildVectorSQL(t *testing.T) {
	untyped := buildVectorSQL(0)
	assert.Contains(t, untyped, "embedding <=> $2::vector")
	assert.NotContains(t, untyped, "vector(")

	typed := buildVectorSQL(768)
	assert.Contains(t, typed, "(embedding::vector(768)) <=> $2::vector(768)")
	assert.Contains(t, typed, "embedding IS NOT NULL")
	assert.Contains(t, typed, "LIMIT $5")
}

func TestVectorIndexSQL(t *testing.T) {
	sql := vectorIndexSQL(384)
	assert.Contains(t, sql, "code_entries_embedding_hnsw_384")
	assert.Contains(t, sql, "USING hnsw ((embedding::vector(384)) vector_cosine_ops)")
	assert.Contains(t, sql, "WHERE embedding IS NOT NULL")
}

func TestOrderByRequest(t *testing.T) {
	byKey := map[string]catalog.CodeEntry{
		"S52501A": {Code: "S52.501A"},
		"I10":     {Code: "I10"},
	}
	out := orderByRequest([]string{"I10", "X99", "S52501A", "I10"}, byKey)
	require.Len(t, out, 2)
	assert.Equal(t, "I10", out[0].Code)
	assert.Equal(t, "S52.501A", out[1].Code)
}

// ---------------------------------------------------------------------------
// CatalogStore
// ---------------------------------------------------------------------------

func TestLexicalQuery_BindsPatterns(t *testing.T) {
	q := &fakeQuerier{queryErr: fmt.Errorf("connection refused")}
	s := newCatalogStore(q, StoreOptions{TrigramThreshold: 0.25})

	_, err := s.LexicalQuery(context.Background(), catalog.LexicalQuery{
		Vocabulary: catalog.VocabularyDiagnosis,
		Text:       "Radius_Fx",
		Limit:      30,
		ActiveOnly: true,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))

	require.Len(t, q.lastArgs, 7)
	assert.Equal(t, "diagnosis", q.lastArgs[0])
	assert.Equal(t, true, q.lastArgs[1])
	assert.Equal(t, `(^|[^[:alnum:]])radius_fx`, q.lastArgs[2])
	assert.Equal(t, `RADIUS\_FX%`, q.lastArgs[3])
	assert.Equal(t, "radius_fx", q.lastArgs[4])
	assert.Equal(t, 0.25, q.lastArgs[5])
	assert.Equal(t, 30, q.lastArgs[6])
}

func TestLexicalQuery_OrdersByWeightedPredicates(t *testing.T) {
	q := &fakeQuerier{queryErr: fmt.Errorf("connection refused")}
	s := newCatalogStore(q, StoreOptions{})

	_, _ = s.LexicalQuery(context.Background(), catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "fracture", Limit: 3})
	assert.Equal(t, lexicalSQL, q.lastSQL)

	order := q.lastSQL[strings.Index(q.lastSQL, "ORDER BY"):]
	assert.Contains(t, order, "code_key LIKE $4 THEN 0.8")
	assert.Contains(t, order, "lower(title) ~ $3 THEN 0.7")
	assert.Contains(t, order, "lower(normalized_title) ~ $3 THEN 0.5")
	assert.Contains(t, order, "WHERE lower(s.syn) ~ $3) THEN 0.4")
	assert.Contains(t, order, "0.5 * t.sim")
	assert.NotContains(t, order, "ORDER BY greatest(")
}

func TestLexicalQuery_EmptyTextSkipsQuery(t *testing.T) {
	q := &fakeQuerier{}
	s := newCatalogStore(q, StoreOptions{})

	out, err := s.LexicalQuery(context.Background(), catalog.LexicalQuery{Vocabulary: catalog.VocabularyDiagnosis, Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, q.lastSQL)
}

func TestLexicalQuery_LimitDefaults(t *testing.T) {
	q := &fakeQuerier{queryErr: fmt.Errorf("boom")}
	s := newCatalogStore(q, StoreOptions{})

	_, _ = s.LexicalQuery(context.Background(), catalog.LexicalQuery{Vocabulary: catalog.VocabularyProcedure, Text: "knee"})
	assert.Equal(t, maxLexicalRows, q.lastArgs[6])
	assert.Equal(t, 0.3, q.lastArgs[5])
}

func TestVectorQuery_DimensionMismatch(t *testing.T) {
	q := &fakeQuerier{}
	s := newCatalogStore(q, StoreOptions{EmbeddingDim: 3})

	_, err := s.VectorQuery(context.Background(), catalog.VectorQuery{
		Vocabulary: catalog.VocabularyProcedure,
		Embedding:  []float32{1, 0},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeVectorSearchFailed))
	assert.Empty(t, q.lastSQL)
}

func TestVectorQuery_BindsVector(t *testing.T) {
	q := &fakeQuerier{queryErr: fmt.Errorf("boom")}
	s := newCatalogStore(q, StoreOptions{EmbeddingDim: 2})

	_, err := s.VectorQuery(context.Background(), catalog.VectorQuery{
		Vocabulary: catalog.VocabularyProcedure,
		Embedding:  []float32{0.6, 0.8},
		Threshold:  0.4,
		Limit:      50,
		ActiveOnly: true,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))
	assert.Contains(t, q.lastSQL, "vector(2)")

	require.Len(t, q.lastArgs, 5)
	assert.Equal(t, "procedure", q.lastArgs[0])
	vec, ok := q.lastArgs[1].(pgvector.Vector)
	require.True(t, ok)
	assert.Equal(t, []float32{0.6, 0.8}, vec.Slice())
	assert.Equal(t, true, q.lastArgs[2])
	assert.Equal(t, 0.4, q.lastArgs[3])
	assert.Equal(t, 50, q.lastArgs[4])
}

func TestVectorQuery_EmptyEmbedding(t *testing.T) {
	s := newCatalogStore(&fakeQuerier{}, StoreOptions{})
	out, err := s.VectorQuery(context.Background(), catalog.VectorQuery{Vocabulary: catalog.VocabularyProcedure})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGetByCode_NotFound(t *testing.T) {
	q := &fakeQuerier{rowErr: pgx.ErrNoRows}
	s := newCatalogStore(q, StoreOptions{})

	_, err := s.GetByCode(context.Background(), catalog.VocabularyDiagnosis, " s52.501a ")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCodeNotFound))
	assert.Equal(t, []any{"diagnosis", "s52.501a", "S52501A"}, q.lastArgs)
}

func TestGetByCode_StorageFailure(t *testing.T) {
	q := &fakeQuerier{rowErr: fmt.Errorf("connection reset")}
	s := newCatalogStore(q, StoreOptions{})

	_, err := s.GetByCode(context.Background(), catalog.VocabularyDiagnosis, "I10")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))
	assert.False(t, errors.IsNotFound(err))
}

func TestGetByCodes_EmptyInput(t *testing.T) {
	q := &fakeQuerier{}
	s := newCatalogStore(q, StoreOptions{})
	out, err := s.GetByCodes(context.Background(), catalog.VocabularyProcedure, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, q.lastSQL)
}

func TestEnsureVectorIndex(t *testing.T) {
	q := &fakeQuerier{}
	require.NoError(t, newCatalogStore(q, StoreOptions{}).EnsureVectorIndex(context.Background()))
	assert.Empty(t, q.lastSQL)

	require.NoError(t, newCatalogStore(q, StoreOptions{EmbeddingDim: 4}).EnsureVectorIndex(context.Background()))
	assert.Contains(t, q.lastSQL, "vector(4)")

	q.execErr = fmt.Errorf("extension missing")
	err := newCatalogStore(q, StoreOptions{EmbeddingDim: 4}).EnsureVectorIndex(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeStorageUnavailable))
}

func TestUpsertEntries_QueuesOnePerEntry(t *testing.T) {
	q := &fakeQuerier{}
	s := newCatalogStore(q, StoreOptions{})

	err := s.UpsertEntries(context.Background(), []catalog.CodeEntry{
		{Code: "S52.501A", Title: "Fracture of radius", Vocabulary: catalog.VocabularyDiagnosis, Active: true, Embedding: []float32{1, 0}},
		{Code: "25607", Title: "Open treatment of distal radial fracture", Vocabulary: catalog.VocabularyProcedure, Active: true},
	})
	require.NoError(t, err)
	require.Equal(t, 2, q.batch.Len())
	assert.Equal(t, 2, q.results.execs)

	first := q.batch.QueuedQueries[0].Arguments
	assert.Equal(t, "S52501A", first[9])
	assert.IsType(t, pgvector.Vector{}, first[10])
	assert.Equal(t, []string{}, first[4])

	second := q.batch.QueuedQueries[1].Arguments
	assert.Nil(t, second[10])
}

func TestUpsertEntries_RejectsMissingVocabulary(t *testing.T) {
	s := newCatalogStore(&fakeQuerier{}, StoreOptions{})
	err := s.UpsertEntries(context.Background(), []catalog.CodeEntry{{Code: "X"}})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestUpsertEntries_BatchFailure(t *testing.T) {
	q := &fakeQuerier{batchErr: fmt.Errorf("unique violation")}
	s := newCatalogStore(q, StoreOptions{})
	err := s.UpsertEntries(context.Background(), []catalog.CodeEntry{{Code: "I10", Vocabulary: catalog.VocabularyDiagnosis}})
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseError))
}
