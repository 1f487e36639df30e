// Package minio stores catalog snapshots and rule tables in an S3-compatible
// bucket and exposes them as reload sources for the engine.
package minio

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// connectTimeout bounds the startup bucket check.
const connectTimeout = 10 * time.Second

// MinIOAPI is the subset of *minio.Client the engine calls.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ErrObjectNotFound is returned for a missing key.
var ErrObjectNotFound = errors.New(errors.CodeNotFound, "object not found")

// ErrClientClosed is returned after Close.
var ErrClientClosed = errors.New(errors.CodeServiceUnavailable, "minio client is closed")

// Client reads and writes objects in the configured bucket.
type Client struct {
	api    MinIOAPI
	bucket string
	region string
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient connects, verifies the bucket and creates it when missing.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create minio client")
	}

	c := NewClientWithAPI(api, cfg.Bucket, cfg.Region, log)
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("MinIO client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL),
	)
	return c, nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api MinIOAPI, bucket, region string, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if region == "" {
		region = "us-east-1"
	}
	return &Client{api: api, bucket: bucket, region: region, logger: log.Named("minio")}
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// EnsureBucket creates the bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "failed to check bucket existence").WithDetail(c.bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "failed to create bucket").WithDetail(c.bucket)
	}
	c.logger.Info("Created bucket", logging.String("bucket", c.bucket))
	return nil
}

// Get reads a whole object.
func (c *Client) Get(ctx context.Context, key string) ([]byte, ObjectInfo, error) {
	if err := c.checkOpen(); err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, c.mapErr(err, key, "failed to get object")
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, ObjectInfo{}, c.mapErr(err, key, "failed to stat object")
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, ObjectInfo{}, c.mapErr(err, key, "failed to read object")
	}
	return data, toInfo(stat), nil
}

// Stat returns object metadata.
func (c *Client) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := c.checkOpen(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, c.mapErr(err, key, "failed to stat object")
	}
	return toInfo(info), nil
}

// Put uploads data under key.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) (ObjectInfo, error) {
	if err := c.checkOpen(); err != nil {
		return ObjectInfo{}, err
	}
	up, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, errors.Wrap(err, errors.CodeExternalService, "failed to put object").WithDetail(key)
	}
	c.logger.Info("Object uploaded",
		logging.String("key", key),
		logging.Int64("size", up.Size),
		logging.String("etag", up.ETag),
	)
	return ObjectInfo{Key: key, ETag: up.ETag, Size: up.Size, LastModified: up.LastModified}, nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		return errors.New(errors.CodeServiceUnavailable, "bucket missing").WithDetail(c.bucket)
	}
	return nil
}

// Close marks the client closed.  minio-go holds no long-lived connections
// beyond its HTTP transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

func (c *Client) mapErr(err error, key, msg string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound.WithDetail(key).WithCause(err)
	}
	return errors.Wrap(err, errors.CodeExternalService, msg).WithDetail(key)
}

func toInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{Key: info.Key, ETag: info.ETag, Size: info.Size, LastModified: info.LastModified}
}
