package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/CodeLink-Engine/internal/app"
	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/CodeLink-Engine/internal/interfaces/grpc"
	httpserver "github.com/turtacn/CodeLink-Engine/internal/interfaces/http"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/handlers"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/middleware"
)

const startupTimeout = time.Minute

// version is injected via ldflags.
var version = "dev"

func init() {
	app.Version = version
}

func main() {
	configPath := flag.String("config", "", "path to configuration file (environment only when empty)")
	httpPort := flag.Int("http-port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *httpPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, httpPort int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if httpPort > 0 {
		cfg.Server.Port = httpPort
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting CodeLink API server",
		logging.String("version", app.Version),
		logging.Int("http_port", cfg.Server.Port),
		logging.Int("grpc_port", cfg.Server.GRPCPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	infra, err := app.Open(startCtx, cfg, logger)
	if err != nil {
		cancel()
		return err
	}
	defer infra.Close()

	svc, err := infra.NewEngine(startCtx)
	cancel()
	if err != nil {
		return err
	}

	consumer, dlq, err := infra.StartRefresh(ctx, svc)
	if err != nil {
		return err
	}
	if consumer != nil {
		defer consumer.Close()
	}
	if dlq != nil {
		defer dlq.Close()
	}

	if configPath != "" {
		err := config.Watch(configPath, func(next *config.Config) {
			if err := svc.ApplyConfig(next.Engine); err != nil {
				logger.Warn("engine configuration change rejected", logging.Err(err))
				return
			}
			logger.Info("engine configuration reloaded")
		}, func(err error) {
			logger.Warn("configuration change ignored", logging.Err(err))
		})
		if err != nil {
			logger.Warn("configuration watch disabled", logging.Err(err))
		}
	}

	checkers := infra.HealthCheckers()
	routerCfg := httpserver.RouterConfig{
		EngineHandler:    handlers.NewEngineHandler(svc, logger),
		HealthHandler:    handlers.NewHealthHandler(app.Version, infra.Metrics, checkers...),
		Logger:           logger,
		Metrics:          infra.Metrics,
		MetricsCollector: infra.Collector,
	}
	if infra.Graph != nil {
		routerCfg.GraphHandler = handlers.NewGraphHandler(infra.Graph, logger)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		routerCfg.CORS = middleware.DefaultCORSConfig()
		routerCfg.CORS.AllowedOrigins = cfg.Server.CORSOrigins
	}
	if cfg.Server.RateLimit > 0 {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.Server.RateLimit
		rl.BurstSize = cfg.Server.RateBurst
		routerCfg.RateLimit = rl
		routerCfg.RateLimiter = middleware.NewKeyedLimiter(rl.RequestsPerSecond, rl.BurstSize, rl.IdleTTL)
	}

	httpSrv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 2)
	go func() { errCh <- httpSrv.Start() }()

	var grpcSrv *grpcserver.Server
	if cfg.Server.GRPCPort > 0 {
		probes := make([]grpcserver.Checker, 0, len(checkers))
		for _, c := range checkers {
			probes = append(probes, c)
		}
		grpcSrv = grpcserver.NewServer(
			grpcserver.WithLogger(logger),
			grpcserver.WithMetrics(infra.Metrics),
			grpcserver.WithCheckers(probes...),
			grpcserver.WithProbeInterval(cfg.Server.HealthInterval),
		)
		go func() { errCh <- grpcSrv.Listen(fmt.Sprintf(":%d", cfg.Server.GRPCPort)) }()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", logging.Err(err))
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := httpSrv.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", logging.Err(err))
	}
	if grpcSrv != nil {
		_ = grpcSrv.Stop(shutdownCtx)
	}
	logger.Info("CodeLink API server stopped")
	return nil
}
