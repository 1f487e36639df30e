// Package grpc serves the standard gRPC health protocol for the engine.  The
// serving status of every backend is re-probed on an interval so gRPC-aware
// load balancers and orchestrators can route around a degraded instance.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
)

const (
	defaultProbeInterval   = 10 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	defaultGracefulTimeout = 10 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAge:      30 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               1 * time.Second,
}

var defaultKeepalivePolicy = keepalive.EnforcementPolicy{
	MinTime:             5 * time.Second,
	PermitWithoutStream: true,
}

// Checker probes one backend.  handlers.CheckFunc satisfies it.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	metrics         *prometheus.EngineMetrics
	checkers        []Checker
	probeInterval   time.Duration
	probeTimeout    time.Duration
	keepaliveParams keepalive.ServerParameters
	gracefulTimeout time.Duration
	reflection      bool
}

func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

func WithMetrics(m *prometheus.EngineMetrics) Option {
	return func(o *serverOptions) { o.metrics = m }
}

// WithCheckers sets the probes behind the health status.  Each checker is
// also published as its own health service name.
func WithCheckers(cs ...Checker) Option {
	return func(o *serverOptions) { o.checkers = append(o.checkers, cs...) }
}

func WithProbeInterval(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.probeInterval = d
		}
	}
}

func WithKeepaliveParams(params keepalive.ServerParameters) Option {
	return func(o *serverOptions) { o.keepaliveParams = params }
}

func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// WithReflection registers the reflection service.
func WithReflection() Option {
	return func(o *serverOptions) { o.reflection = true }
}

// Server is a gRPC server carrying the health service.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	opts         *serverOptions

	mu       sync.Mutex
	listener net.Listener
	started  bool
	cancel   context.CancelFunc
	probes   sync.WaitGroup
}

// NewServer builds the server.  The status of every service starts as
// NOT_SERVING until the first probe round completes.
func NewServer(opts ...Option) *Server {
	sopts := &serverOptions{
		probeInterval:   defaultProbeInterval,
		probeTimeout:    defaultProbeTimeout,
		keepaliveParams: defaultKeepaliveParams,
		gracefulTimeout: defaultGracefulTimeout,
	}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}
	sopts.logger = sopts.logger.Named("grpc")

	gs := grpc.NewServer(
		grpc.KeepaliveParams(sopts.keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(defaultKeepalivePolicy),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(sopts.logger),
			loggingUnaryInterceptor(sopts.logger),
		),
		grpc.ChainStreamInterceptor(
			recoveryStreamInterceptor(sopts.logger),
			loggingStreamInterceptor(sopts.logger),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range sopts.checkers {
		hs.SetServingStatus(c.Name(), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if sopts.reflection {
		reflection.Register(gs)
	}

	return &Server{grpcServer: gs, healthServer: hs, opts: sopts}
}

// Probe runs every checker once and publishes the results.  The overall
// status is SERVING only when every checker passes.
func (s *Server) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.probeTimeout)
	defer cancel()

	results := make([]error, len(s.opts.checkers))
	var wg sync.WaitGroup
	for i, c := range s.opts.checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, c)
	}
	wg.Wait()

	healthy := true
	for i, c := range s.opts.checkers {
		st := healthpb.HealthCheckResponse_SERVING
		if err := results[i]; err != nil {
			healthy = false
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.opts.logger.Warn("health probe failed", logging.String("component", c.Name()), logging.Err(err))
		}
		s.opts.metrics.SetHealth(c.Name(), results[i] == nil)
		s.healthServer.SetServingStatus(c.Name(), st)
	}
	overall := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		overall = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", overall)
	return healthy
}

// Listen binds addr and serves until Stop.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve probes once, starts the probe loop and serves ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.listener = ln
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.Probe(ctx)
	s.probes.Add(1)
	go s.probeLoop(ctx)

	s.opts.logger.Info("grpc server starting", logging.String("address", ln.Addr().String()))
	err := s.grpcServer.Serve(ln)
	if err == grpc.ErrServerStopped {
		return nil
	}
	return err
}

func (s *Server) probeLoop(ctx context.Context) {
	defer s.probes.Done()
	t := time.NewTicker(s.opts.probeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}

// Stop marks every service NOT_SERVING and drains in-flight calls, forcing
// the stop when ctx or the graceful timeout ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.probes.Wait()
	s.healthServer.Shutdown()

	gracefulCtx, done := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer done()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.opts.logger.Info("grpc server stopped gracefully")
	case <-gracefulCtx.Done():
		s.opts.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func loggingUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

func loggingStreamInterceptor(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isHealthCheck(info.FullMethod) {
			return handler(srv, ss)
		}
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("grpc stream",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", time.Since(start)),
			logging.String("code", status.Code(err).String()),
		)
		return err
	}
}
