package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const backendName = "postgres"

// maxLexicalRows caps a lexical query that arrives without a limit.
const maxLexicalRows = 500

// querier is the subset of *pgxpool.Pool the stores use.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const entryColumns = `vocabulary, code, title, normalized_title, synonyms, chapter, subchapter, has_modifiers, active`

// lexicalSQL orders the recall pool by the same weighted predicate sum the
// engine scores with, so a low-similarity prefix hit is not cut by the limit
// in favour of trigram-only rows.
var lexicalSQL = fmt.Sprintf(`
SELECT `+entryColumns+`
FROM code_entries
CROSS JOIN LATERAL (
    SELECT greatest(similarity(lower(title), $5), similarity(lower(normalized_title), $5)) AS sim
) AS t
WHERE vocabulary = $1
  AND (NOT $2::boolean OR active)
  AND (
       lower(title) ~ $3
    OR lower(normalized_title) ~ $3
    OR ($4 <> '' AND code_key LIKE $4)
    OR t.sim >= $6
    OR EXISTS (SELECT 1 FROM unnest(synonyms) AS s(syn) WHERE lower(s.syn) ~ $3)
  )
ORDER BY (
      CASE WHEN $4 <> '' AND code_key LIKE $4 THEN %[1]g ELSE 0 END
    + CASE WHEN lower(title) ~ $3 THEN %[2]g ELSE 0 END
    + CASE WHEN normalized_title <> '' AND lower(normalized_title) ~ $3 THEN %[3]g ELSE 0 END
    + CASE WHEN EXISTS (SELECT 1 FROM unnest(synonyms) AS s(syn) WHERE lower(s.syn) ~ $3) THEN %[4]g ELSE 0 END
    + CASE WHEN t.sim >= $6 THEN %[5]g * t.sim ELSE 0 END
  ) DESC, lower(title), title, code
LIMIT $7`,
	catalog.WeightCodePrefix,
	catalog.WeightTitlePrefix,
	catalog.WeightNormalizedTitlePrefix,
	catalog.WeightSynonymPrefix,
	catalog.WeightTrigram,
)

const getByCodeSQL = `
SELECT ` + entryColumns + `, embedding
FROM code_entries
WHERE vocabulary = $1 AND (code = $2 OR code_key = $3)
ORDER BY (code = $2) DESC
LIMIT 1`

const getByCodesSQL = `
SELECT ` + entryColumns + `, embedding
FROM code_entries
WHERE vocabulary = $1 AND (code = ANY($2) OR code_key = ANY($3))`

const upsertEntrySQL = `
INSERT INTO code_entries (` + entryColumns + `, code_key, embedding, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::vector, now())
ON CONFLICT (vocabulary, code) DO UPDATE SET
    title = EXCLUDED.title,
    normalized_title = EXCLUDED.normalized_title,
    synonyms = EXCLUDED.synonyms,
    chapter = EXCLUDED.chapter,
    subchapter = EXCLUDED.subchapter,
    has_modifiers = EXCLUDED.has_modifiers,
    active = EXCLUDED.active,
    code_key = EXCLUDED.code_key,
    embedding = EXCLUDED.embedding,
    updated_at = now()`

// StoreOptions tunes a CatalogStore.
type StoreOptions struct {
	// TrigramThreshold is the pg_trgm similarity that admits a row during
	// recall.  The engine re-scores, so this only bounds over-recall.
	TrigramThreshold float64
	// EmbeddingDim, when positive, casts the vector column so the partial
	// HNSW index built by EnsureVectorIndex is used.
	EmbeddingDim int
	Metrics      *prometheus.EngineMetrics
	Logger       logging.Logger
}

// CatalogStore implements catalog.Storage over the code_entries table.
type CatalogStore struct {
	db        querier
	threshold float64
	dim       int
	vectorSQL string
	metrics   *prometheus.EngineMetrics
	logger    logging.Logger
}

var _ catalog.Storage = (*CatalogStore)(nil)

// NewCatalogStore builds a store on conn's pool.
func NewCatalogStore(conn *Connection, opts StoreOptions) *CatalogStore {
	return newCatalogStore(conn.Pool(), opts)
}

func newCatalogStore(db querier, opts StoreOptions) *CatalogStore {
	if opts.TrigramThreshold <= 0 {
		opts.TrigramThreshold = config.DefaultTrigramThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &CatalogStore{
		db:        db,
		threshold: opts.TrigramThreshold,
		dim:       opts.EmbeddingDim,
		vectorSQL: buildVectorSQL(opts.EmbeddingDim),
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("catalog_store"),
	}
}

// buildVectorSQL renders the cosine query.  With a fixed dimension the
// column is cast so the planner can match the expression index.
func buildVectorSQL(dim int) string {
	col, param := "embedding", "$2::vector"
	if dim > 0 {
		col = fmt.Sprintf("(embedding::vector(%d))", dim)
		param = fmt.Sprintf("$2::vector(%d)", dim)
	}
	return `
SELECT ` + entryColumns + `, 1 - (` + col + ` <=> ` + param + `) AS similarity
FROM code_entries
WHERE vocabulary = $1
  AND embedding IS NOT NULL
  AND (NOT $3::boolean OR active)
  AND 1 - (` + col + ` <=> ` + param + `) >= $4
ORDER BY ` + col + ` <=> ` + param + `, title, code
LIMIT $5`
}

// vectorIndexSQL is the partial HNSW cosine index for a fixed dimension.
func vectorIndexSQL(dim int) string {
	return fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS code_entries_embedding_hnsw_%[1]d ON code_entries `+
			`USING hnsw ((embedding::vector(%[1]d)) vector_cosine_ops) WHERE embedding IS NOT NULL`, dim)
}

// EnsureVectorIndex creates the cosine index for the configured dimension.
// A zero dimension is a no-op.
func (s *CatalogStore) EnsureVectorIndex(ctx context.Context) error {
	if s.dim <= 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, vectorIndexSQL(s.dim)); err != nil {
		return errors.StorageUnavailable(err, "failed to create vector index").
			WithDetail(fmt.Sprintf("dim=%d", s.dim))
	}
	s.logger.Info("Vector index ready", logging.Int("dim", s.dim))
	return nil
}

// LexicalQuery returns rows whose title, normalized title or synonyms
// contain q.Text at a word start, whose code starts with it, or whose title
// is trigram-similar to it.
func (s *CatalogStore) LexicalQuery(ctx context.Context, q catalog.LexicalQuery) (out []catalog.CodeEntry, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStorageQuery(backendName, "lexical", time.Since(start), err) }()

	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 || limit > maxLexicalRows {
		limit = maxLexicalRows
	}

	rows, err := s.db.Query(ctx, lexicalSQL,
		string(q.Vocabulary),
		q.ActiveOnly,
		wordPrefixPattern(text),
		codePattern(q.Text),
		text,
		s.threshold,
		limit,
	)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "lexical query failed").WithDetail(string(q.Vocabulary))
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows, false)
		if err != nil {
			return nil, errors.StorageUnavailable(err, "failed to scan catalog row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageUnavailable(err, "lexical query failed").WithDetail(string(q.Vocabulary))
	}
	return out, nil
}

// VectorQuery returns embedded rows at or above q.Threshold by cosine
// similarity, nearest first.  Entries come back without their vectors.
func (s *CatalogStore) VectorQuery(ctx context.Context, q catalog.VectorQuery) (out []catalog.ScoredEntry, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStorageQuery(backendName, "vector", time.Since(start), err) }()

	if len(q.Embedding) == 0 {
		return nil, nil
	}
	if s.dim > 0 && len(q.Embedding) != s.dim {
		return nil, errors.New(errors.CodeVectorSearchFailed, "query embedding dimension mismatch").
			WithDetail(fmt.Sprintf("got %d, want %d", len(q.Embedding), s.dim))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = maxLexicalRows
	}

	rows, err := s.db.Query(ctx, s.vectorSQL,
		string(q.Vocabulary),
		pgvector.NewVector(q.Embedding),
		q.ActiveOnly,
		q.Threshold,
		limit,
	)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "vector query failed").WithDetail(string(q.Vocabulary))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e   catalog.CodeEntry
			sim float64
		)
		if err := rows.Scan(entryDest(&e, nil, &sim)...); err != nil {
			return nil, errors.StorageUnavailable(err, "failed to scan catalog row")
		}
		out = append(out, catalog.ScoredEntry{Entry: e, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageUnavailable(err, "vector query failed").WithDetail(string(q.Vocabulary))
	}
	return out, nil
}

// GetByCode looks a code up exactly, then by its dotless upper-case key.
func (s *CatalogStore) GetByCode(ctx context.Context, vocab catalog.Vocabulary, code string) (_ *catalog.CodeEntry, err error) {
	start := time.Now()
	defer func() {
		if errors.IsCode(err, errors.CodeCodeNotFound) {
			s.metrics.RecordStorageQuery(backendName, "get", time.Since(start), nil)
			return
		}
		s.metrics.RecordStorageQuery(backendName, "get", time.Since(start), err)
	}()

	code = strings.TrimSpace(code)
	e, err := scanEntry(s.db.QueryRow(ctx, getByCodeSQL, string(vocab), code, catalog.NormalizeCode(code)), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeCodeNotFound, "code not found").WithDetail(code)
	}
	if err != nil {
		return nil, errors.StorageUnavailable(err, "code lookup failed").WithDetail(code)
	}
	return &e, nil
}

// GetByCodes returns the entries for codes in request order, skipping
// unknown codes and duplicates.
func (s *CatalogStore) GetByCodes(ctx context.Context, vocab catalog.Vocabulary, codes []string) (out []catalog.CodeEntry, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStorageQuery(backendName, "get_many", time.Since(start), err) }()

	if len(codes) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(codes))
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		raw = append(raw, c)
		keys = append(keys, catalog.NormalizeCode(c))
	}

	rows, err := s.db.Query(ctx, getByCodesSQL, string(vocab), raw, keys)
	if err != nil {
		return nil, errors.StorageUnavailable(err, "code lookup failed")
	}
	defer rows.Close()

	byKey := make(map[string]catalog.CodeEntry, len(codes))
	for rows.Next() {
		e, err := scanEntry(rows, true)
		if err != nil {
			return nil, errors.StorageUnavailable(err, "failed to scan catalog row")
		}
		byKey[catalog.NormalizeCode(e.Code)] = e
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageUnavailable(err, "code lookup failed")
	}
	return orderByRequest(keys, byKey), nil
}

// UpsertEntries writes entries in one batch.  It backs fixture loading and
// the snapshot import command; the engine itself never writes the catalog.
func (s *CatalogStore) UpsertEntries(ctx context.Context, entries []catalog.CodeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		if !e.Vocabulary.Valid() {
			return errors.InvalidParam("entry has no vocabulary").WithDetail(e.Code)
		}
		var vec any
		if e.HasEmbedding() {
			vec = pgvector.NewVector(e.Embedding)
		}
		synonyms := e.Synonyms
		if synonyms == nil {
			synonyms = []string{}
		}
		batch.Queue(upsertEntrySQL,
			string(e.Vocabulary), e.Code, e.Title, e.NormalizedTitle, synonyms,
			e.Chapter, e.Subchapter, e.HasModifiers, e.Active,
			catalog.NormalizeCode(e.Code), vec,
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return errors.Wrap(err, errors.CodeDatabaseError, "failed to upsert catalog entries")
		}
	}
	s.logger.Info("Catalog entries upserted", logging.Int("count", len(entries)))
	return nil
}

// entryDest lists scan targets in entryColumns order, optionally followed by
// the embedding and a similarity score.
func entryDest(e *catalog.CodeEntry, vec **pgvector.Vector, sim *float64) []any {
	dest := []any{
		&e.Vocabulary, &e.Code, &e.Title, &e.NormalizedTitle, &e.Synonyms,
		&e.Chapter, &e.Subchapter, &e.HasModifiers, &e.Active,
	}
	if vec != nil {
		dest = append(dest, vec)
	}
	if sim != nil {
		dest = append(dest, sim)
	}
	return dest
}

func scanEntry(row pgx.Row, withEmbedding bool) (catalog.CodeEntry, error) {
	var (
		e   catalog.CodeEntry
		vec *pgvector.Vector
	)
	var vecDest **pgvector.Vector
	if withEmbedding {
		vecDest = &vec
	}
	if err := row.Scan(entryDest(&e, vecDest, nil)...); err != nil {
		return catalog.CodeEntry{}, err
	}
	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return e, nil
}

func orderByRequest(keys []string, byKey map[string]catalog.CodeEntry) []catalog.CodeEntry {
	out := make([]catalog.CodeEntry, 0, len(byKey))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if e, ok := byKey[k]; ok {
			out = append(out, e)
		}
	}
	return out
}

// escapeLike escapes the LIKE metacharacters with the default backslash
// escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// wordPrefixPattern matches text at the start of the string or of any word,
// as a POSIX regular expression.  pg_trgm indexes serve the match.
func wordPrefixPattern(text string) string {
	return `(^|[^[:alnum:]])` + regexp.QuoteMeta(text)
}

// codePattern is the code_key prefix pattern for single-token queries, or
// empty when the query cannot be a code.
func codePattern(text string) string {
	t := strings.TrimSpace(text)
	if t == "" || strings.ContainsAny(t, " \t") {
		return ""
	}
	key := catalog.NormalizeCode(t)
	if key == "" {
		return ""
	}
	return escapeLike(key) + "%"
}
