package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const (
	maxLexicalHits = 500
	bulkBatch      = 500
)

// IndexName is the index holding vocab's entries.
func IndexName(prefix string, vocab catalog.Vocabulary) string {
	return prefix + "_" + string(vocab)
}

// catalogMapping indexes titles and synonyms with the standard analyzer plus
// an edge n-gram subfield for word-prefix recall.  code_key is the code with
// dots stripped and upper-cased.
const catalogMapping = `{
  "settings": {
    "analysis": {
      "filter": {"prefix_ngram": {"type": "edge_ngram", "min_gram": 2, "max_gram": 15}},
      "analyzer": {
        "prefix": {"type": "custom", "tokenizer": "standard", "filter": ["lowercase", "asciifolding", "prefix_ngram"]}
      }
    }
  },
  "mappings": {
    "properties": {
      "code":             {"type": "keyword"},
      "code_key":         {"type": "keyword"},
      "title":            {"type": "text", "fields": {"prefix": {"type": "text", "analyzer": "prefix", "search_analyzer": "standard"}}},
      "normalized_title": {"type": "text"},
      "synonyms":         {"type": "text", "fields": {"prefix": {"type": "text", "analyzer": "prefix", "search_analyzer": "standard"}}},
      "chapter":          {"type": "keyword"},
      "subchapter":       {"type": "keyword"},
      "active":           {"type": "boolean"},
      "has_modifiers":    {"type": "boolean"},
      "vocabulary":       {"type": "keyword"}
    }
  }
}`

// document is the indexed form of a CodeEntry.
type document struct {
	Code            string   `json:"code"`
	CodeKey         string   `json:"code_key"`
	Title           string   `json:"title"`
	NormalizedTitle string   `json:"normalized_title"`
	Synonyms        []string `json:"synonyms,omitempty"`
	Chapter         string   `json:"chapter,omitempty"`
	Subchapter      string   `json:"subchapter,omitempty"`
	Active          bool     `json:"active"`
	HasModifiers    bool     `json:"has_modifiers,omitempty"`
	Vocabulary      string   `json:"vocabulary"`
}

func toDocument(e catalog.CodeEntry) document {
	return document{
		Code:            e.Code,
		CodeKey:         catalog.NormalizeCode(e.Code),
		Title:           e.Title,
		NormalizedTitle: e.NormalizedTitle,
		Synonyms:        e.Synonyms,
		Chapter:         e.Chapter,
		Subchapter:      e.Subchapter,
		Active:          e.Active,
		HasModifiers:    e.HasModifiers,
		Vocabulary:      string(e.Vocabulary),
	}
}

func (d document) entry(vocab catalog.Vocabulary) catalog.CodeEntry {
	return catalog.CodeEntry{
		Code:            d.Code,
		Title:           d.Title,
		NormalizedTitle: d.NormalizedTitle,
		Synonyms:        d.Synonyms,
		Chapter:         d.Chapter,
		Subchapter:      d.Subchapter,
		Active:          d.Active,
		HasModifiers:    d.HasModifiers,
		Vocabulary:      vocab,
	}
}

// LexicalIndex answers lexical queries from OpenSearch.  Recall is broad;
// the engine re-scores every hit.
type LexicalIndex struct {
	client  *Client
	prefix  string
	metrics *prometheus.EngineMetrics
	logger  logging.Logger
}

var _ catalog.LexicalSource = (*LexicalIndex)(nil)

// NewLexicalIndex creates a LexicalIndex over indexes named prefix_<vocab>.
func NewLexicalIndex(c *Client, prefix string, metrics *prometheus.EngineMetrics, log logging.Logger) *LexicalIndex {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LexicalIndex{client: c, prefix: prefix, metrics: metrics, logger: log.Named("opensearch_lexical")}
}

// buildQuery returns the search body for q.
func buildQuery(q catalog.LexicalQuery) map[string]interface{} {
	should := []interface{}{
		map[string]interface{}{"match": map[string]interface{}{
			"title": map[string]interface{}{"query": q.Text, "fuzziness": "AUTO", "boost": 2},
		}},
		map[string]interface{}{"match": map[string]interface{}{"title.prefix": q.Text}},
		map[string]interface{}{"match": map[string]interface{}{"normalized_title": q.Text}},
		map[string]interface{}{"match": map[string]interface{}{"synonyms": map[string]interface{}{"query": q.Text, "fuzziness": "AUTO"}}},
		map[string]interface{}{"match": map[string]interface{}{"synonyms.prefix": q.Text}},
	}
	if !strings.ContainsAny(q.Text, " \t") {
		should = append(should, map[string]interface{}{"prefix": map[string]interface{}{
			"code_key": map[string]interface{}{"value": catalog.NormalizeCode(q.Text), "boost": 3},
		}})
	}

	boolQ := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if q.ActiveOnly {
		boolQ["filter"] = []interface{}{map[string]interface{}{"term": map[string]interface{}{"active": true}}}
	}

	limit := q.Limit
	if limit <= 0 || limit > maxLexicalHits {
		limit = maxLexicalHits
	}
	return map[string]interface{}{
		"size":  limit,
		"query": map[string]interface{}{"bool": boolQ},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"code": "asc"},
		},
	}
}

// LexicalQuery searches the vocabulary's index.
func (x *LexicalIndex) LexicalQuery(ctx context.Context, q catalog.LexicalQuery) (out []catalog.CodeEntry, err error) {
	start := time.Now()
	defer func() { x.metrics.RecordStorageQuery("opensearch", "lexical", time.Since(start), err) }()

	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal query")
	}

	index := IndexName(x.prefix, q.Vocabulary)
	resp, err := x.client.API().Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(err, errors.CodeLexicalSearchFailed, "opensearch search failed").WithDetail(index)
	}

	out = make([]catalog.CodeEntry, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var d document
		if err := json.Unmarshal(h.Source, &d); err != nil {
			return nil, errors.Wrap(err, errors.CodeLexicalSearchFailed, "malformed opensearch document").WithDetail(h.ID)
		}
		out = append(out, d.entry(q.Vocabulary))
	}
	x.logger.Debug("Lexical search executed",
		logging.String("index", index),
		logging.Int("hits", len(out)),
		logging.Duration("took", time.Since(start)))
	return out, nil
}

// EnsureIndex creates the vocabulary's index when missing.
func (x *LexicalIndex) EnsureIndex(ctx context.Context, vocab catalog.Vocabulary) error {
	index := IndexName(x.prefix, vocab)
	exists, err := x.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := x.client.API().Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: index,
		Body:  strings.NewReader(catalogMapping),
	}); err != nil {
		return errors.Wrap(err, errors.CodeStorageUnavailable, "failed to create opensearch index").WithDetail(index)
	}
	x.logger.Info("Index created", logging.String("index", index))
	return nil
}

func (x *LexicalIndex) indexExists(ctx context.Context, index string) (bool, error) {
	resp, err := x.client.API().Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{index}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp != nil && resp.StatusCode == 404 {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodeStorageUnavailable, "failed to check opensearch index").WithDetail(index)
	}
	return true, nil
}

// Sync bulk-indexes entries of one vocabulary, keyed by code.
func (x *LexicalIndex) Sync(ctx context.Context, vocab catalog.Vocabulary, entries []catalog.CodeEntry) (int, error) {
	index := IndexName(x.prefix, vocab)
	total := 0
	for start := 0; start < len(entries); start += bulkBatch {
		end := start + bulkBatch
		if end > len(entries) {
			end = len(entries)
		}
		body, err := bulkBody(index, entries[start:end])
		if err != nil {
			return total, err
		}
		resp, err := x.client.API().Bulk(ctx, opensearchapi.BulkReq{
			Body:   bytes.NewReader(body),
			Params: opensearchapi.BulkParams{Refresh: "true"},
		})
		if err != nil {
			return total, errors.Wrap(err, errors.CodeStorageUnavailable, "opensearch bulk request failed").WithDetail(index)
		}
		if resp.Errors {
			return total, errors.New(errors.CodeStorageUnavailable, "opensearch bulk request had item failures").WithDetail(index)
		}
		total += end - start
	}
	x.logger.Info("Synced documents", logging.String("index", index), logging.Int("count", total))
	return total, nil
}

func bulkBody(index string, entries []catalog.CodeEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": index, "_id": e.Code}}
		if err := enc.Encode(meta); err != nil {
			return nil, errors.Wrap(err, errors.CodeSerialization, "failed to encode bulk action")
		}
		if err := enc.Encode(toDocument(e)); err != nil {
			return nil, errors.Wrap(err, errors.CodeSerialization, "failed to encode bulk document")
		}
	}
	return buf.Bytes(), nil
}
