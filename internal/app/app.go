// Package app assembles the engine and its backends from configuration.  It
// is the composition root shared by the API server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/turtacn/CodeLink-Engine/internal/application/engine"
	"github.com/turtacn/CodeLink-Engine/internal/config"
	"github.com/turtacn/CodeLink-Engine/internal/domain/catalog"
	"github.com/turtacn/CodeLink-Engine/internal/domain/linkage"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/neo4j"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/postgres"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/database/redis"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/embedding"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/search/milvus"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/search/opensearch"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/minio"
	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/storage/snapshot"
)

// Version is the build version.  The binaries set it from ldflags.
var Version = "dev"

// Infrastructure holds the backend clients and the catalog ports built on
// them.  Optional backends are nil when disabled.
type Infrastructure struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.EngineMetrics

	Postgres   *postgres.Connection
	Snapshot   *snapshot.Store
	Redis      *redis.Client
	Neo4j      *neo4j.Driver
	MinIO      *minio.Client
	OpenSearch *opensearch.Client
	Milvus     *milvus.Client

	// Primary is the store that owns code lookups.
	Primary catalog.Storage
	// Storage routes lexical and vector queries to the search backends
	// when those are enabled.
	Storage        catalog.Storage
	Embedder       catalog.EmbeddingProvider
	EmbeddingCache *redis.CachedEmbedder
	Recorder       catalog.LinkRecorder
	Graph          *neo4j.LinkGraph
	RuleSource     linkage.RuleSource
	SnapshotLoader snapshot.Loader
}

// Open connects every enabled backend.  On failure the backends opened so far
// are closed again.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (*Infrastructure, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	infra := &Infrastructure{Config: cfg, Logger: log}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		Subsystem:            cfg.Metrics.Subsystem,
		EnableProcessMetrics: cfg.Metrics.Enabled,
		EnableGoMetrics:      cfg.Metrics.Enabled,
	}, log.Named("metrics"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	infra.Collector = collector
	infra.Metrics = prometheus.NewEngineMetrics(collector)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"minio", infra.openMinIO},
		{"storage", infra.openPrimary},
		{"opensearch", infra.openOpenSearch},
		{"milvus", infra.openMilvus},
		{"embedding", infra.openEmbedder},
		{"neo4j", infra.openNeo4j},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			infra.Close()
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	infra.wireRecorder()
	infra.wireRuleSource()

	log.Info("infrastructure initialized",
		logging.String("storage", cfg.Storage.Backend),
		logging.Bool("opensearch", infra.OpenSearch != nil),
		logging.Bool("milvus", infra.Milvus != nil),
		logging.Bool("embedding", infra.Embedder != nil),
		logging.Bool("embedding_cache", infra.EmbeddingCache != nil),
		logging.Bool("neo4j", infra.Neo4j != nil),
		logging.Bool("minio", infra.MinIO != nil),
	)
	return infra, nil
}

func (i *Infrastructure) openMinIO(ctx context.Context) error {
	if !i.Config.MinIO.Enabled {
		return nil
	}
	c, err := minio.NewClient(ctx, i.Config.MinIO, i.Logger)
	if err != nil {
		return err
	}
	i.MinIO = c
	return nil
}

func (i *Infrastructure) openPrimary(ctx context.Context) error {
	cfg := i.Config
	switch cfg.Storage.Backend {
	case config.BackendSnapshot:
		i.SnapshotLoader = snapshot.FileLoader{Path: cfg.Storage.SnapshotPath}
		if i.MinIO != nil && cfg.Storage.SnapshotObject != "" {
			i.SnapshotLoader = minio.NewObjectSource(i.MinIO, cfg.Storage.SnapshotObject, "", i.Logger)
		}
		doc, err := i.SnapshotLoader.LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		store, err := snapshot.NewStore(doc, snapshot.Options{
			TrigramThreshold: cfg.Engine.Search.TrigramThreshold,
			Metrics:          i.Metrics,
			Logger:           i.Logger,
		})
		if err != nil {
			return err
		}
		i.Snapshot = store
		i.Primary = store
	default:
		conn, err := postgres.NewConnection(ctx, cfg.Database, i.Logger)
		if err != nil {
			return err
		}
		i.Postgres = conn
		if cfg.Database.AutoMigrate {
			if err := migrateUp(conn.DSN(), i.Logger); err != nil {
				return err
			}
		}
		store := postgres.NewCatalogStore(conn, postgres.StoreOptions{
			TrigramThreshold: cfg.Engine.Search.TrigramThreshold,
			EmbeddingDim:     cfg.Database.EmbeddingDim,
			Metrics:          i.Metrics,
			Logger:           i.Logger,
		})
		if cfg.Database.AutoMigrate {
			if err := store.EnsureVectorIndex(ctx); err != nil {
				return err
			}
		}
		i.Primary = store
	}
	i.Storage = i.Primary
	return nil
}

func migrateUp(dsn string, log logging.Logger) error {
	m, err := postgres.NewMigrator(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func (i *Infrastructure) openOpenSearch(ctx context.Context) error {
	if !i.Config.OpenSearch.Enabled {
		return nil
	}
	c, err := opensearch.NewClient(ctx, i.Config.OpenSearch, i.Logger)
	if err != nil {
		return err
	}
	i.OpenSearch = c
	lexical := opensearch.NewLexicalIndex(c, i.Config.OpenSearch.IndexPrefix, i.Metrics, i.Logger)
	i.Storage = catalog.Compose(i.Primary, lexical, nil)
	return nil
}

func (i *Infrastructure) openMilvus(ctx context.Context) error {
	if !i.Config.Milvus.Enabled {
		return nil
	}
	c, err := milvus.NewClient(ctx, i.Config.Milvus, i.Logger)
	if err != nil {
		return err
	}
	i.Milvus = c
	vector := milvus.NewVectorIndex(c, i.Primary, milvus.IndexOptions{
		CollectionPrefix: i.Config.Milvus.CollectionPrefix,
		Ef:               i.Config.Milvus.HNSWEf,
		Metrics:          i.Metrics,
		Logger:           i.Logger,
	})
	var lexical catalog.LexicalSource
	if i.Storage != i.Primary {
		lexical = i.Storage
	}
	i.Storage = catalog.Compose(i.Primary, lexical, vector)
	return nil
}

func (i *Infrastructure) openEmbedder(ctx context.Context) error {
	cfg := i.Config
	if !cfg.Embedding.Enabled {
		return nil
	}
	client, err := embedding.NewClient(cfg.Embedding,
		embedding.WithLogger(i.Logger),
		embedding.WithMetrics(i.Metrics),
		embedding.WithDimension(cfg.Database.EmbeddingDim),
	)
	if err != nil {
		return err
	}
	i.Embedder = client
	if !cfg.Redis.Enabled {
		return nil
	}

	rc, err := redis.NewClient(ctx, cfg.Redis, i.Logger)
	if err != nil {
		return err
	}
	i.Redis = rc
	i.EmbeddingCache = redis.NewCachedEmbedder(client, rc, redis.EmbeddingCacheOptions{
		Model:         cfg.Embedding.Model,
		Prefix:        cfg.Redis.KeyPrefix,
		TTL:           cfg.Redis.DefaultTTL,
		Jitter:        0.1,
		FlightTimeout: cfg.Embedding.Timeout,
		Metrics:       i.Metrics,
		Logger:        i.Logger,
	})
	i.Embedder = i.EmbeddingCache
	return nil
}

func (i *Infrastructure) openNeo4j(ctx context.Context) error {
	if !i.Config.Neo4j.Enabled {
		return nil
	}
	d, err := neo4j.NewDriver(ctx, i.Config.Neo4j, i.Logger)
	if err != nil {
		return err
	}
	i.Neo4j = d
	i.Graph = neo4j.NewLinkGraph(d, i.Metrics, i.Logger)
	return i.Graph.EnsureConstraints(ctx)
}

func (i *Infrastructure) wireRecorder() {
	if !i.Config.Engine.Linkage.RecordLinks {
		return
	}
	var recs []catalog.LinkRecorder
	if i.Postgres != nil {
		recs = append(recs, postgres.NewLinkStore(i.Postgres, i.Metrics, i.Logger))
	}
	if i.Graph != nil {
		recs = append(recs, i.Graph)
	}
	switch len(recs) {
	case 0:
		i.Logger.Warn("link recording enabled but no recorder backend is configured")
	case 1:
		i.Recorder = recs[0]
	default:
		i.Recorder = multiRecorder(recs)
	}
}

func (i *Infrastructure) wireRuleSource() {
	l := i.Config.Engine.Linkage
	switch {
	case i.MinIO != nil && l.RulesObject != "":
		i.RuleSource = minio.NewObjectSource(i.MinIO, "", l.RulesObject, i.Logger)
	case l.RulesPath != "":
		i.RuleSource = linkage.FileSource{Path: l.RulesPath}
	default:
		i.RuleSource = linkage.StaticSource{}
	}
}

// NewEngine builds the engine service over the opened backends and loads the
// configured rule table.  A rule table that fails to load is fatal here.
func (i *Infrastructure) NewEngine(ctx context.Context) (engine.Service, error) {
	svc, err := engine.NewService(engine.Deps{
		Storage:    i.Storage,
		Embedder:   i.Embedder,
		Recorder:   i.Recorder,
		RuleSource: i.RuleSource,
		Logger:     i.Logger,
		Metrics:    i.Metrics,
		Config:     i.Config.Engine,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.ReloadRules(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// Close releases every opened backend in reverse dependency order.
func (i *Infrastructure) Close() {
	closers := []struct {
		name string
		fn   func() error
	}{
		{"neo4j", closeIf(i.Neo4j != nil, func() error { return i.Neo4j.Close() })},
		{"redis", closeIf(i.Redis != nil, func() error { return i.Redis.Close() })},
		{"milvus", closeIf(i.Milvus != nil, func() error { return i.Milvus.Close() })},
		{"minio", closeIf(i.MinIO != nil, func() error { return i.MinIO.Close() })},
		{"postgres", closeIf(i.Postgres != nil, func() error { i.Postgres.Close(); return nil })},
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			i.Logger.Warn("close failed", logging.String("backend", c.name), logging.Err(err))
		}
	}
}

func closeIf(ok bool, fn func() error) func() error {
	if !ok {
		return func() error { return nil }
	}
	return fn
}
