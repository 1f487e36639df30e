package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const upsertBatch = 1000

// IndexOptions configures a VectorIndex.
type IndexOptions struct {
	CollectionPrefix string
	// Ef is the HNSW search breadth.
	Ef      int
	Metrics *prometheus.EngineMetrics
	Logger  logging.Logger
}

// VectorIndex answers vector queries from Milvus and hydrates the hits from
// the primary store, so titles and classifications have one owner.
type VectorIndex struct {
	client  *Client
	entries catalog.EntryReader
	opts    IndexOptions
	logger  logging.Logger
}

var _ catalog.VectorSource = (*VectorIndex)(nil)

// NewVectorIndex creates a VectorIndex.
func NewVectorIndex(c *Client, entries catalog.EntryReader, opts IndexOptions) *VectorIndex {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Ef <= 0 {
		opts.Ef = 64
	}
	return &VectorIndex{client: c, entries: entries, opts: opts, logger: opts.Logger.Named("milvus_index")}
}

// VectorQuery searches the vocabulary's collection.  Milvus returns cosine
// similarity for COSINE indexes, so the threshold applies to scores as-is.
func (x *VectorIndex) VectorQuery(ctx context.Context, q catalog.VectorQuery) (out []catalog.ScoredEntry, err error) {
	start := time.Now()
	defer func() { x.opts.Metrics.RecordStorageQuery("milvus", "vector", time.Since(start), err) }()

	if len(q.Embedding) == 0 || q.Limit <= 0 {
		return nil, nil
	}
	mc := x.client.SDK()
	if mc == nil {
		return nil, errors.New(errors.CodeVectorSearchFailed, "milvus client is closed")
	}

	sp, err := entity.NewIndexHNSWSearchParam(x.opts.Ef)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "invalid hnsw search params")
	}
	expr := ""
	if q.ActiveOnly {
		expr = FieldActive + " == true"
	}
	name := CollectionName(x.opts.CollectionPrefix, q.Vocabulary)

	results, err := mc.Search(ctx, name, nil, expr, nil,
		[]entity.Vector{entity.FloatVector(q.Embedding)}, FieldEmbedding, entity.COSINE, q.Limit, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "milvus search failed").WithDetail(name)
	}

	hits, err := collectHits(results, q.Threshold)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	codes := make([]string, len(hits))
	for i, h := range hits {
		codes[i] = h.code
	}
	entries, err := x.entries.GetByCodes(ctx, q.Vocabulary, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]catalog.CodeEntry, len(entries))
	for _, e := range entries {
		byCode[e.Code] = e
	}

	out = make([]catalog.ScoredEntry, 0, len(hits))
	for _, h := range hits {
		e, ok := byCode[h.code]
		if !ok {
			x.logger.Debug("Dropping milvus hit missing from primary store", logging.String("code", h.code))
			continue
		}
		if q.ActiveOnly && !e.Active {
			continue
		}
		out = append(out, catalog.ScoredEntry{Entry: e.WithoutEmbedding(), Similarity: h.score})
	}
	return out, nil
}

type hit struct {
	code  string
	score float64
}

func collectHits(results []client.SearchResult, threshold float64) ([]hit, error) {
	var hits []hit
	for _, res := range results {
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, errors.CodeVectorSearchFailed, "milvus search failed")
		}
		for i := 0; i < res.ResultCount && i < len(res.Scores); i++ {
			score := float64(res.Scores[i])
			if score < threshold {
				continue
			}
			code, err := res.IDs.GetAsString(i)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeVectorSearchFailed, "unexpected milvus id column")
			}
			hits = append(hits, hit{code: code, score: score})
		}
	}
	return hits, nil
}

// Sync upserts the embedded entries of one vocabulary.  Entries without an
// embedding are skipped; every vector must have width dim.
func (x *VectorIndex) Sync(ctx context.Context, vocab catalog.Vocabulary, dim int, entries []catalog.CodeEntry) (int, error) {
	mc := x.client.SDK()
	if mc == nil {
		return 0, ErrConnectionFailed
	}
	name := CollectionName(x.opts.CollectionPrefix, vocab)

	var (
		codes   []string
		actives []bool
		vectors [][]float32
		total   int
	)
	flush := func() error {
		if len(codes) == 0 {
			return nil
		}
		_, err := mc.Upsert(ctx, name, "",
			entity.NewColumnVarChar(FieldCode, codes),
			entity.NewColumnBool(FieldActive, actives),
			entity.NewColumnFloatVector(FieldEmbedding, dim, vectors))
		if err != nil {
			return errors.Wrap(err, errors.CodeStorageUnavailable, "milvus upsert failed").WithDetail(name)
		}
		total += len(codes)
		codes, actives, vectors = nil, nil, nil
		return nil
	}

	for _, e := range entries {
		if !e.HasEmbedding() {
			continue
		}
		if len(e.Embedding) != dim {
			return total, errors.InvalidParam("embedding width does not match collection").
				WithDetail(fmt.Sprintf("%s: got %d, want %d", e.Code, len(e.Embedding), dim))
		}
		codes = append(codes, e.Code)
		actives = append(actives, e.Active)
		vectors = append(vectors, e.Embedding)
		if len(codes) == upsertBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	x.logger.Info("Synced vectors", logging.String("collection", name), logging.Int("count", total))
	return total, nil
}
