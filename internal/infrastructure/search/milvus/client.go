// Package milvus is the Milvus-backed vector index for catalog entries.
package milvus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// ClientFactory creates a Milvus SDK client.
type ClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

// milvusNewClient is swapped in tests.
var milvusNewClient ClientFactory = client.NewClient

var (
	ErrConnectionFailed = errors.New(errors.CodeStorageUnavailable, "milvus connection failed")
	ErrUnhealthy        = errors.New(errors.CodeServiceUnavailable, "milvus unhealthy")
)

const (
	connectTimeout   = 10 * time.Second
	keepAliveTime    = 60 * time.Second
	keepAliveTimeout = 20 * time.Second
)

// Client manages the Milvus SDK connection.
type Client struct {
	mc      client.Client
	cfg     config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewClient dials Milvus and verifies it is healthy.
func NewClient(ctx context.Context, cfg config.MilvusConfig, log logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.InvalidParam("milvus addr is required")
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	mc, err := connect(ctx, cfg)
	if err != nil {
		return nil, ErrConnectionFailed.WithCause(err).WithDetail(cfg.Addr)
	}

	c := NewClientWithSDK(mc, cfg, log)
	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, ErrConnectionFailed.WithCause(err).WithDetail(cfg.Addr)
	}

	c.logger.Info("Milvus client connected", logging.String("address", cfg.Addr))
	return c, nil
}

// NewClientWithSDK wraps an existing SDK client.
func NewClientWithSDK(mc client.Client, cfg config.MilvusConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{mc: mc, cfg: cfg, logger: log.Named("milvus")}
}

func connect(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepAliveTime,
			Timeout:             keepAliveTimeout,
			PermitWithoutStream: true,
		}),
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	return milvusNewClient(connectCtx, client.Config{
		Address:     cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DBName:      cfg.DBName,
		DialOptions: dialOpts,
	})
}

// CheckHealth asks Milvus for its state.
func (c *Client) CheckHealth(ctx context.Context) error {
	mc := c.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}

	state, err := mc.CheckHealth(ctx)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("Milvus health check failed", logging.Err(err))
		return ErrUnhealthy.WithCause(err)
	}
	if state != nil && !state.IsHealthy {
		c.healthy.Store(false)
		return ErrUnhealthy.WithDetail(strings.Join(state.Reasons, "; "))
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy returns the last observed health.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// SDK returns the underlying SDK client.
func (c *Client) SDK() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

// Close closes the SDK client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc == nil {
		return nil
	}
	err := c.mc.Close()
	c.mc = nil
	c.logger.Info("Milvus client closed")
	return err
}
