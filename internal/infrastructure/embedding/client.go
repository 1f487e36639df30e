// Package embedding is the HTTP client for the external embedding provider.
// It speaks the OpenAI-style embeddings protocol:
//
//	POST <endpoint>  {"model": "...", "input": "..."}
//	200              {"data": [{"embedding": [...]}], "model": "..."}
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// maxResponseBytes caps the body read from the provider.
const maxResponseBytes = 8 << 20

// Client calls the embedding provider.  Every failure is an
// EmbeddingUnavailable AppError so the engine can degrade to lexical search.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	dim        int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logging.Logger
	metrics    *prometheus.EngineMetrics
}

var _ catalog.EmbeddingProvider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithMetrics records provider calls on m.
func WithMetrics(m *prometheus.EngineMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDimension rejects responses whose vector width differs from dim.
func WithDimension(dim int) Option {
	return func(c *Client) { c.dim = dim }
}

// NewClient builds a Client from cfg.  A zero RateLimit disables throttling.
func NewClient(cfg config.EmbeddingConfig, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.InvalidParam("embedding endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.InvalidParam("embedding endpoint must be an http(s) URL").WithDetail(cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultEmbeddingTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("embedding")
	return c, nil
}

type embedRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordEmbedding(time.Since(start), err) }()

	if text == "" {
		return nil, errors.EmbeddingUnavailable(nil, "cannot embed empty text")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.EmbeddingUnavailable(err, "embedding rate limit wait aborted")
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, errors.EmbeddingUnavailable(err, "failed to encode embedding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.EmbeddingUnavailable(err, "failed to build embedding request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Embedding request failed", logging.String("request_id", requestID), logging.Err(err))
		return nil, errors.EmbeddingUnavailable(err, "embedding request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.EmbeddingUnavailable(err, "failed to read embedding response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := providerMessage(raw)
		c.logger.Warn("Embedding provider returned an error",
			logging.String("request_id", requestID),
			logging.Int("status", resp.StatusCode),
			logging.String("message", msg))
		return nil, errors.EmbeddingUnavailable(nil, "embedding provider error").
			WithDetail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.EmbeddingUnavailable(err, "malformed embedding response")
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.EmbeddingUnavailable(nil, "embedding response carried no vector")
	}
	vec = out.Data[0].Embedding
	if c.dim > 0 && len(vec) != c.dim {
		return nil, errors.EmbeddingUnavailable(nil, "embedding dimension mismatch").
			WithDetail(fmt.Sprintf("got %d, want %d", len(vec), c.dim))
	}
	return vec, nil
}

func providerMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 256 {
		raw = raw[:256]
	}
	return string(raw)
}
