package catalog

import "context"

// EmbeddingProvider turns text into a dense vector.  Implementations may be
// remote; every error is treated as recoverable by the engine.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LexicalQuery asks a backend for text-match candidates.  Text is already
// normalized.  Backends may over-recall; the engine re-scores.
type LexicalQuery struct {
	Vocabulary Vocabulary
	Text       string
	Limit      int
	ActiveOnly bool
}

// VectorQuery asks a backend for nearest neighbours by cosine similarity.
// Only entries with an embedding participate.
type VectorQuery struct {
	Vocabulary Vocabulary
	Embedding  []float32
	Threshold  float64
	Limit      int
	ActiveOnly bool
}

// LexicalSource returns candidate entries for a lexical query.
type LexicalSource interface {
	LexicalQuery(ctx context.Context, q LexicalQuery) ([]CodeEntry, error)
}

// VectorSource returns entries at or above q.Threshold, similarity descending.
type VectorSource interface {
	VectorQuery(ctx context.Context, q VectorQuery) ([]ScoredEntry, error)
}

// EntryReader fetches entries by code.  GetByCode returns a CodeNotFound
// AppError when the code is absent; GetByCodes silently skips missing codes.
type EntryReader interface {
	GetByCode(ctx context.Context, vocab Vocabulary, code string) (*CodeEntry, error)
	GetByCodes(ctx context.Context, vocab Vocabulary, codes []string) ([]CodeEntry, error)
}

// Storage is the full read surface of a catalog backend.
type Storage interface {
	LexicalSource
	VectorSource
	EntryReader
}

// LinkRecorder persists approved links for downstream consumers.
type LinkRecorder interface {
	RecordLinks(ctx context.Context, diagnosis CodeEntry, links []LinkCandidate) error
}

// composite routes each query kind to a dedicated backend.
type composite struct {
	primary Storage
	lexical LexicalSource
	vector  VectorSource
}

// Compose builds a Storage that sends lexical queries to lexical and vector
// queries to vector, falling back to primary for either when nil.  Code
// lookups always go to primary.
func Compose(primary Storage, lexical LexicalSource, vector VectorSource) Storage {
	if lexical == nil && vector == nil {
		return primary
	}
	c := &composite{primary: primary, lexical: lexical, vector: vector}
	if c.lexical == nil {
		c.lexical = primary
	}
	if c.vector == nil {
		c.vector = primary
	}
	return c
}

func (c *composite) LexicalQuery(ctx context.Context, q LexicalQuery) ([]CodeEntry, error) {
	return c.lexical.LexicalQuery(ctx, q)
}

func (c *composite) VectorQuery(ctx context.Context, q VectorQuery) ([]ScoredEntry, error) {
	return c.vector.VectorQuery(ctx, q)
}

func (c *composite) GetByCode(ctx context.Context, vocab Vocabulary, code string) (*CodeEntry, error) {
	return c.primary.GetByCode(ctx, vocab, code)
}

func (c *composite) GetByCodes(ctx context.Context, vocab Vocabulary, codes []string) ([]CodeEntry, error) {
	return c.primary.GetByCodes(ctx, vocab, codes)
}
