package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
)

type stubChecker struct {
	name string
	fail atomic.Bool
}

func (c *stubChecker) Name() string { return c.name }

func (c *stubChecker) Check(context.Context) error {
	if c.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func startServer(t *testing.T, opts ...Option) (*Server, healthpb.HealthClient) {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	srv := NewServer(opts...)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return ln.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		require.NoError(t, srv.Stop(context.Background()))
		assert.NoError(t, <-served)
	})
	return srv, healthpb.NewHealthClient(conn)
}

func healthStatus(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestServer_AllCheckersHealthy(t *testing.T) {
	pg := &stubChecker{name: "postgres"}
	_, client := startServer(t, WithCheckers(pg))

	require.Eventually(t, func() bool {
		return healthStatus(t, client, "") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, client, "postgres"))
}

func TestServer_FailingCheckerMarksNotServing(t *testing.T) {
	pg := &stubChecker{name: "postgres"}
	redis := &stubChecker{name: "redis"}
	redis.fail.Store(true)
	srv, client := startServer(t, WithCheckers(pg, redis))

	require.Eventually(t, func() bool {
		return healthStatus(t, client, "postgres") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, client, "redis"))

	redis.fail.Store(false)
	assert.True(t, srv.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, client, ""))
}

func TestServer_ProbeLoopPicksUpRecovery(t *testing.T) {
	pg := &stubChecker{name: "postgres"}
	pg.fail.Store(true)
	_, client := startServer(t, WithCheckers(pg), WithProbeInterval(20*time.Millisecond))

	pg.fail.Store(false)
	require.Eventually(t, func() bool {
		return healthStatus(t, client, "") == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_UnknownServiceIsNotFound(t *testing.T) {
	_, client := startServer(t)
	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "milvus"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_DoubleServe(t *testing.T) {
	srv, _ := startServer(t)
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	err := srv.Serve(bufconn.Listen(1024))
	assert.ErrorContains(t, err, "already started")
}

func TestServer_StopBeforeServe(t *testing.T) {
	srv := NewServer()
	assert.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Addr())
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	icpt := recoveryUnaryInterceptor(logging.NewLoggerFromCore(core))

	_, err := icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Boom"},
		func(context.Context, interface{}) (interface{}, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, 1, logs.FilterMessage("grpc panic recovered").Len())
	assert.Equal(t, "/svc/Boom", logs.All()[0].ContextMap()["method"])

	resp, err := icpt(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/svc/Ok"},
		func(_ context.Context, req interface{}) (interface{}, error) { return req, nil })
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
}

func TestRecoveryStreamInterceptor(t *testing.T) {
	icpt := recoveryStreamInterceptor(logging.NewNopLogger())
	err := icpt(nil, nil, &grpc.StreamServerInfo{FullMethod: "/svc/Stream"},
		func(interface{}, grpc.ServerStream) error { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestLoggingUnaryInterceptor_SkipsHealthChecks(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	icpt := loggingUnaryInterceptor(logging.NewLoggerFromCore(core))
	ok := func(context.Context, interface{}) (interface{}, error) { return nil, nil }

	_, _ = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, ok)
	assert.Zero(t, logs.Len())

	_, _ = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Call"},
		func(context.Context, interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unavailable, "down")
		})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Unavailable", logs.All()[0].ContextMap()["code"])
}
