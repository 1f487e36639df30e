package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

const embeddingCacheName = "embedding"

const defaultFlightTimeout = 10 * time.Second

// EmbeddingCacheOptions configures a CachedEmbedder.
type EmbeddingCacheOptions struct {
	// Model scopes keys so switching models never serves stale vectors.
	Model string
	// Prefix is prepended to every key.
	Prefix string
	TTL    time.Duration
	// Jitter is the fractional TTL spread, e.g. 0.1 for ±10%.
	Jitter float64
	// FlightTimeout bounds a shared provider call.  The call is detached
	// from any one caller's cancellation.
	FlightTimeout time.Duration
	Metrics       *prometheus.EngineMetrics
	Logger        logging.Logger
}

// CachedEmbedder is a read-through Redis cache in front of an embedding
// provider.  Cache failures never fail a request; they fall through to the
// inner provider.
type CachedEmbedder struct {
	inner   catalog.EmbeddingProvider
	client  *Client
	opts    EmbeddingCacheOptions
	sf      singleflight.Group
	logger  logging.Logger
	metrics *prometheus.EngineMetrics
}

var _ catalog.EmbeddingProvider = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache on client.
func NewCachedEmbedder(inner catalog.EmbeddingProvider, client *Client, opts EmbeddingCacheOptions) *CachedEmbedder {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.FlightTimeout <= 0 {
		opts.FlightTimeout = defaultFlightTimeout
	}
	return &CachedEmbedder{
		inner:   inner,
		client:  client,
		opts:    opts,
		logger:  opts.Logger.Named("embedding_cache"),
		metrics: opts.Metrics,
	}
}

// Embed returns the cached vector for text or computes and stores it.
// Concurrent misses for the same text share one provider call; each caller
// stops waiting when its own ctx is done.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.Key(text)

	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		if vec, ok := decodeVector(raw); ok {
			c.metrics.RecordCacheAccess(embeddingCacheName, true)
			return vec, nil
		}
		c.logger.Warn("Discarding malformed cached embedding", logging.String("key", key), logging.Int("bytes", len(raw)))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("Embedding cache read failed", logging.String("key", key), logging.Err(err))
	}
	c.metrics.RecordCacheAccess(embeddingCacheName, false)

	ch := c.sf.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FlightTimeout)
		defer cancel()
		vec, err := c.inner.Embed(fctx, text)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(fctx, key, encodeVector(vec), c.ttl()); err != nil {
			c.logger.Warn("Embedding cache write failed", logging.String("key", key), logging.Err(err))
		}
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

// Invalidate drops every cached vector for the configured model.
func (c *CachedEmbedder) Invalidate(ctx context.Context) (int64, error) {
	n, err := c.client.ScanDel(ctx, c.opts.Prefix+"emb:"+c.opts.Model+":*")
	if err != nil {
		return n, errors.Wrap(err, errors.CodeCacheError, "failed to invalidate embedding cache")
	}
	c.logger.Info("Invalidated embedding cache", logging.String("model", c.opts.Model), logging.Int64("keys", n))
	return n, nil
}

// Key is the cache key for text.
func (c *CachedEmbedder) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.opts.Prefix + "emb:" + c.opts.Model + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) ttl() time.Duration {
	if c.opts.Jitter <= 0 {
		return c.opts.TTL
	}
	spread := float64(c.opts.TTL) * c.opts.Jitter
	return c.opts.TTL + time.Duration((rand.Float64()*2-1)*spread)
}

// encodeVector packs v as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, true
}
