package app

import (
	"context"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/interfaces/http/handlers"
	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// multiRecorder fans approved links out to several recorders.  Every
// recorder runs; the first failure is returned.
type multiRecorder []catalog.LinkRecorder

func (m multiRecorder) RecordLinks(ctx context.Context, dx catalog.CodeEntry, links []catalog.LinkCandidate) error {
	var first error
	for _, r := range m {
		if err := r.RecordLinks(ctx, dx, links); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// HealthCheckers returns one readiness probe per opened backend.  The
// embedding provider is left out: the engine degrades without it.
func (i *Infrastructure) HealthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	add := func(name string, probe func(context.Context) error) {
		out = append(out, handlers.CheckFunc{Component: name, Probe: probe})
	}
	if i.Postgres != nil {
		add("postgres", i.Postgres.HealthCheck)
	}
	if i.Snapshot != nil {
		add("snapshot", i.Snapshot.HealthCheck)
	}
	if i.OpenSearch != nil {
		add("opensearch", i.OpenSearch.Ping)
	}
	if i.Milvus != nil {
		add("milvus", i.Milvus.CheckHealth)
	}
	if i.Redis != nil {
		add("redis", i.Redis.HealthCheck)
	}
	if i.Neo4j != nil {
		add("neo4j", i.Neo4j.HealthCheck)
	}
	if i.MinIO != nil {
		add("minio", i.MinIO.HealthCheck)
	}
	return out
}

// RefreshHandlers maps refresh events onto svc and the opened backends.
// Events for a backend that is not in use are ignored.
func (i *Infrastructure) RefreshHandlers(svc engine.Service) kafka.RefreshHandlers {
	h := kafka.RefreshHandlers{
		OnRules: func(ctx context.Context, _ *kafka.RefreshEvent) error {
			return svc.ReloadRules(ctx)
		},
	}
	if i.Snapshot != nil && i.SnapshotLoader != nil {
		h.OnSnapshot = func(ctx context.Context, _ *kafka.RefreshEvent) error {
			return i.Snapshot.Reload(ctx, i.SnapshotLoader)
		}
	}
	if i.EmbeddingCache != nil {
		h.OnEmbeddings = func(ctx context.Context, evt *kafka.RefreshEvent) error {
			n, err := i.EmbeddingCache.Invalidate(ctx)
			i.Metrics.RecordRefresh("embeddings", err)
			if err != nil {
				return err
			}
			i.Logger.WithContext(ctx).Info("embedding cache invalidated",
				logging.Int64("keys", n), logging.String("model", evt.Model))
			return nil
		}
	}
	return h
}

// StartRefresh starts the refresh consumer when Kafka is enabled.  The
// returned consumer is nil otherwise; callers Close it on shutdown.
func (i *Infrastructure) StartRefresh(ctx context.Context, svc engine.Service) (*kafka.Consumer, *kafka.Producer, error) {
	cfg := i.Config.Kafka
	if !cfg.Enabled {
		return nil, nil, nil
	}
	reader, err := kafka.NewReader(cfg)
	if err != nil {
		return nil, nil, err
	}

	var dlq *kafka.Producer
	if cfg.DeadLetterTopic != "" {
		dlq, err = kafka.NewProducer(cfg.Brokers, i.Logger)
		if err != nil {
			_ = reader.Close()
			return nil, nil, err
		}
	}

	consumer := kafka.NewConsumer(reader, kafka.RefreshHandler(i.RefreshHandlers(svc), i.Logger), kafka.ConsumerOptions{
		MaxRetries:      cfg.MaxRetries,
		DeadLetterTopic: cfg.DeadLetterTopic,
		DeadLetters:     dlq,
	}, i.Logger)
	if err := consumer.Start(ctx); err != nil {
		_ = reader.Close()
		if dlq != nil {
			_ = dlq.Close()
		}
		return nil, nil, errors.Wrap(err, errors.CodeExternalService, "failed to start refresh consumer")
	}
	return consumer, dlq, nil
}
