package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

func newMiniClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClient_Success(t *testing.T) {
	client, _ := newMiniClient(t)
	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(context.Background(), config.RedisConfig{Addr: "localhost:1", DialTimeout: 200 * time.Millisecond}, nil)
	assert.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCacheError))
	assert.Nil(t, client)
}

func TestClient_Operations(t *testing.T) {
	client, mr := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", []byte("bar"), time.Minute))
	val, err := client.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "bar", string(val))
	assert.Equal(t, time.Minute, mr.TTL("foo"))

	_, err = client.Get(ctx, "missing")
	assert.ErrorIs(t, err, redis.Nil)

	n, err := client.Del(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_ScanDel(t *testing.T) {
	client, mr := newMiniClient(t)
	ctx := context.Background()

	for _, k := range []string{"codelink:emb:a", "codelink:emb:b", "other:c"} {
		require.NoError(t, mr.Set(k, "v"))
	}
	n, err := client.ScanDel(ctx, "codelink:emb:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("other:c"))
}

func TestClient_Close(t *testing.T) {
	client, _ := newMiniClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Get(context.Background(), "foo")
	assert.Equal(t, ErrClientClosed, err)
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
