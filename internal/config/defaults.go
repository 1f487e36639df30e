package config

import "time"

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSnapshot = "snapshot"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultHealthInterval  = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultStorageBackend = BackendPostgres

	DefaultDBHost       = "localhost"
	DefaultDBPort       = 5432
	DefaultDBName       = "codelink"
	DefaultDBMaxConns   = 25
	DefaultDBMinConns   = 2
	DefaultEmbeddingDim = 768
	DefaultConnLifetime = time.Hour
	DefaultConnIdleTime = 30 * time.Minute

	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingTimeout = 5 * time.Second

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisTTL    = 24 * time.Hour
	DefaultRedisPrefix = "codelink:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "codelink-engine"
	DefaultKafkaTopic   = "codelink.catalog.refresh"

	DefaultOpenSearchIndexPrefix = "codelink"

	DefaultMilvusAddr             = "localhost:19530"
	DefaultMilvusCollectionPrefix = "codelink"
	DefaultMilvusHNSWEf           = 64

	DefaultMinIOBucket = "codelink-catalog"

	DefaultNeo4jDatabase = "neo4j"

	DefaultMetricsNamespace = "codelink"
	DefaultMetricsSubsystem = "engine"
)

// Engine defaults.  These are tuned heuristics, not clinically derived values.
const (
	DefaultSearchVectorThreshold = 0.5
	DefaultTrigramThreshold      = 0.3
	DefaultRankDecay             = 0.02
	DefaultRecallFactor          = 3
	DefaultSearchLimit           = 20
	DefaultSearchMaxLimit        = 100
	DefaultStorageTimeout        = 3 * time.Second
	DefaultVectorTimeout         = 2 * time.Second

	DefaultLinkageVectorThreshold = 0.4
	DefaultCandidatePool          = 50
	DefaultLinkageLimit           = 10
	DefaultLinkageMaxLimit        = 50
	DefaultApprovalThreshold      = 0.65
	DefaultConfidenceCeiling      = 0.95
	DefaultBaselineScore          = 0.5
)

// ApplyDefaults fills every zero-value field in cfg with its default.  Values
// already set win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.HealthInterval == 0 {
		cfg.Server.HealthInterval = DefaultHealthInterval
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(2*cfg.Server.RateLimit) + 1
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Storage / Database ────────────────────────────────────────────────────
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = DefaultDBMinConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultConnLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultConnIdleTime
	}
	if cfg.Database.EmbeddingDim == 0 {
		cfg.Database.EmbeddingDim = DefaultEmbeddingDim
	}

	// ── Embedding ─────────────────────────────────────────────────────────────
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbeddingTimeout
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 1
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}

	// ── Search backends ───────────────────────────────────────────────────────
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultOpenSearchIndexPrefix
	}
	if cfg.Milvus.Addr == "" {
		cfg.Milvus.Addr = DefaultMilvusAddr
	}
	if cfg.Milvus.CollectionPrefix == "" {
		cfg.Milvus.CollectionPrefix = DefaultMilvusCollectionPrefix
	}
	if cfg.Milvus.HNSWEf == 0 {
		cfg.Milvus.HNSWEf = DefaultMilvusHNSWEf
	}

	// ── MinIO / Neo4j / Metrics ───────────────────────────────────────────────
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	ApplyEngineDefaults(&cfg.Engine)
}

// ApplyEngineDefaults fills zero engine tunables with their defaults.
func ApplyEngineDefaults(e *EngineConfig) {
	s := &e.Search
	if s.VectorThreshold == 0 {
		s.VectorThreshold = DefaultSearchVectorThreshold
	}
	if s.TrigramThreshold == 0 {
		s.TrigramThreshold = DefaultTrigramThreshold
	}
	if s.RankDecay == 0 {
		s.RankDecay = DefaultRankDecay
	}
	if s.RecallFactor == 0 {
		s.RecallFactor = DefaultRecallFactor
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = DefaultSearchLimit
	}
	if s.MaxLimit == 0 {
		s.MaxLimit = DefaultSearchMaxLimit
	}
	if s.StorageTimeout == 0 {
		s.StorageTimeout = DefaultStorageTimeout
	}
	if s.VectorTimeout == 0 {
		s.VectorTimeout = DefaultVectorTimeout
	}

	l := &e.Linkage
	if l.VectorThreshold == 0 {
		l.VectorThreshold = DefaultLinkageVectorThreshold
	}
	if l.CandidatePool == 0 {
		l.CandidatePool = DefaultCandidatePool
	}
	if l.DefaultLimit == 0 {
		l.DefaultLimit = DefaultLinkageLimit
	}
	if l.MaxLimit == 0 {
		l.MaxLimit = DefaultLinkageMaxLimit
	}
	if l.ApprovalThreshold == 0 {
		l.ApprovalThreshold = DefaultApprovalThreshold
	}
	if l.ConfidenceCeiling == 0 {
		l.ConfidenceCeiling = DefaultConfidenceCeiling
	}
	if l.BaselineScore == 0 {
		l.BaselineScore = DefaultBaselineScore
	}
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
