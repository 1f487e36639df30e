// Package opensearch is the OpenSearch-backed lexical index for catalog
// entries.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

var ErrConnectionFailed = errors.New(errors.CodeStorageUnavailable, "opensearch connection failed")

const (
	maxRetries          = 3
	maxIdleConnsPerHost = 10
)

// Client wraps the OpenSearch API client.
type Client struct {
	api     *opensearchapi.Client
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient builds a client from cfg and pings the cluster.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, log logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.InvalidParam("opensearch addresses are required")
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	transport := &http.Transport{MaxIdleConnsPerHost: maxIdleConnsPerHost}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	api, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:     cfg.Addresses,
			Username:      cfg.User,
			Password:      cfg.Password,
			Transport:     transport,
			MaxRetries:    maxRetries,
			RetryOnStatus: []int{502, 503, 504, 429},
			RetryBackoff:  func(int) time.Duration { return 100 * time.Millisecond },
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create opensearch client")
	}

	c := NewClientWithAPI(api, log)
	if err := c.Ping(ctx); err != nil {
		return nil, ErrConnectionFailed.WithCause(err)
	}
	return c, nil
}

// NewClientWithAPI wraps an existing API client.
func NewClientWithAPI(api *opensearchapi.Client, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{api: api, logger: log.Named("opensearch")}
}

// Ping checks the cluster.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.api.Ping(ctx, nil)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("OpenSearch ping failed", logging.Err(err))
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if resp != nil && resp.IsError() {
		c.healthy.Store(false)
		return errors.Newf(errors.CodeServiceUnavailable, "opensearch ping returned %d", resp.StatusCode)
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the last observed ping result.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// API returns the underlying API client.
func (c *Client) API() *opensearchapi.Client {
	return c.api
}
