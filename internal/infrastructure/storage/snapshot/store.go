package snapshot

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const backendName = "snapshot"

// index is one immutable generation of the catalog.
type index struct {
	version string
	entries map[catalog.Vocabulary][]catalog.CodeEntry
	byKey   map[catalog.Vocabulary]map[string]int
}

func buildIndex(doc *Document) *index {
	idx := &index{
		version: doc.Version,
		entries: make(map[catalog.Vocabulary][]catalog.CodeEntry, 2),
		byKey:   make(map[catalog.Vocabulary]map[string]int, 2),
	}
	for _, e := range doc.Entries {
		idx.entries[e.Vocabulary] = append(idx.entries[e.Vocabulary], e)
	}
	for vocab, list := range idx.entries {
		sort.SliceStable(list, func(i, j int) bool { return catalog.TitleLess(list[i], list[j]) })
		keys := make(map[string]int, len(list))
		for i, e := range list {
			keys[catalog.NormalizeCode(e.Code)] = i
		}
		idx.byKey[vocab] = keys
	}
	return idx
}

// Options tunes a Store.
type Options struct {
	// TrigramThreshold admits rows by trigram similarity during recall.
	TrigramThreshold float64
	Metrics          *prometheus.EngineMetrics
	Logger           logging.Logger
}

// Store implements catalog.Storage from an in-memory snapshot.  Queries never
// block on I/O; Replace swaps the index without disturbing readers.
type Store struct {
	current   atomic.Pointer[index]
	threshold float64
	metrics   *prometheus.EngineMetrics
	logger    logging.Logger
}

var _ catalog.Storage = (*Store)(nil)

// NewStore validates doc and indexes it.
func NewStore(doc *Document, opts Options) (*Store, error) {
	if opts.TrigramThreshold <= 0 {
		opts.TrigramThreshold = config.DefaultTrigramThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	s := &Store{
		threshold: opts.TrigramThreshold,
		metrics:   opts.Metrics,
		logger:    opts.Logger.Named("snapshot"),
	}
	if err := s.Replace(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates doc and makes it the live generation.  On error the
// previous generation stays live.
func (s *Store) Replace(doc *Document) error {
	if doc == nil {
		return errors.New(errors.CodeSnapshotInvalid, "snapshot is nil")
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	idx := buildIndex(doc)
	s.current.Store(idx)
	s.logger.Info("Catalog snapshot loaded",
		logging.String("version", idx.version),
		logging.Int("diagnoses", len(idx.entries[catalog.VocabularyDiagnosis])),
		logging.Int("procedures", len(idx.entries[catalog.VocabularyProcedure])),
	)
	return nil
}

// Reload fetches a fresh document from loader and swaps it in.
func (s *Store) Reload(ctx context.Context, loader Loader) (err error) {
	defer func() { s.metrics.RecordRefresh("snapshot", err) }()

	doc, err := loader.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("Snapshot reload failed, keeping current generation",
			logging.String("version", s.Version()),
			logging.Err(err),
		)
		return err
	}
	return s.Replace(doc)
}

// Version returns the live snapshot version.
func (s *Store) Version() string {
	return s.current.Load().version
}

// Len returns the number of entries in vocab.
func (s *Store) Len(vocab catalog.Vocabulary) int {
	return len(s.current.Load().entries[vocab])
}

// HealthCheck reports an empty catalog as unavailable.
func (s *Store) HealthCheck(context.Context) error {
	idx := s.current.Load()
	if len(idx.entries) == 0 {
		return errors.StorageUnavailable(nil, "catalog snapshot is empty")
	}
	return nil
}

// LexicalQuery scans the vocabulary for word-prefix, code-prefix, synonym
// and trigram matches.  Rows come back by catalog.RecallScore descending,
// then by title and code, so predicate hits outrank trigram-only rows when
// the limit cuts the pool.
func (s *Store) LexicalQuery(ctx context.Context, q catalog.LexicalQuery) ([]catalog.CodeEntry, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, nil
	}

	type hit struct {
		entry catalog.CodeEntry
		score float64
	}
	var hits []hit
	for _, e := range s.current.Load().entries[q.Vocabulary] {
		if q.ActiveOnly && !e.Active {
			continue
		}
		if catalog.TitleSimilarity(e, text) >= s.threshold || lexicalHit(e, text) {
			hits = append(hits, hit{entry: e.WithoutEmbedding(), score: catalog.RecallScore(e, text, s.threshold)})
		}
	}
	// entries are already in title/code order, so a stable sort on
	// score keeps that as the tie-break.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]catalog.CodeEntry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	s.metrics.RecordStorageQuery(backendName, "lexical", time.Since(start), nil)
	return out, nil
}

func lexicalHit(e catalog.CodeEntry, text string) bool {
	if catalog.HasWordPrefix(e.Title, text) || catalog.HasWordPrefix(e.NormalizedTitle, text) {
		return true
	}
	if catalog.CodeHasPrefix(e.Code, text) {
		return true
	}
	for _, syn := range e.Synonyms {
		if catalog.HasWordPrefix(syn, text) {
			return true
		}
	}
	return false
}

// VectorQuery ranks embedded entries by cosine similarity.
func (s *Store) VectorQuery(ctx context.Context, q catalog.VectorQuery) ([]catalog.ScoredEntry, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	if len(q.Embedding) == 0 {
		return nil, nil
	}

	var out []catalog.ScoredEntry
	for _, e := range s.current.Load().entries[q.Vocabulary] {
		if !e.HasEmbedding() || (q.ActiveOnly && !e.Active) {
			continue
		}
		if len(e.Embedding) != len(q.Embedding) {
			return nil, errors.New(errors.CodeVectorSearchFailed, "query embedding dimension mismatch")
		}
		sim := catalog.Cosine(q.Embedding, e.Embedding)
		if sim >= q.Threshold {
			out = append(out, catalog.ScoredEntry{Entry: e.WithoutEmbedding(), Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	s.metrics.RecordStorageQuery(backendName, "vector", time.Since(start), nil)
	return out, nil
}

// GetByCode returns a copy of the entry whose normalized code matches.
func (s *Store) GetByCode(ctx context.Context, vocab catalog.Vocabulary, code string) (*catalog.CodeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	idx := s.current.Load()
	i, ok := idx.byKey[vocab][catalog.NormalizeCode(code)]
	if !ok {
		return nil, errors.New(errors.CodeCodeNotFound, "code not found").WithDetail(strings.TrimSpace(code))
	}
	e := idx.entries[vocab][i]
	return &e, nil
}

// GetByCodes returns entries in request order, skipping unknown codes and
// duplicates.
func (s *Store) GetByCodes(ctx context.Context, vocab catalog.Vocabulary, codes []string) ([]catalog.CodeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	idx := s.current.Load()
	keys := idx.byKey[vocab]
	seen := make(map[string]struct{}, len(codes))
	out := make([]catalog.CodeEntry, 0, len(codes))
	for _, c := range codes {
		k := catalog.NormalizeCode(c)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if i, ok := keys[k]; ok {
			out = append(out, idx.entries[vocab][i])
		}
	}
	return out, nil
}
