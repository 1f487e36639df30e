// Package config defines the configuration structures for the CodeLink engine.
// No I/O or parsing logic lives here; see loader.go.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/CodeLink-Engine/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the per-client request rate; zero disables limiting.
	RateLimit   float64  `mapstructure:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// GRPCPort serves the gRPC health protocol; zero disables it.
	GRPCPort int `mapstructure:"grpc_port"`
	// HealthInterval is how often the gRPC health status is re-probed.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// StorageConfig selects the primary catalog backend.
type StorageConfig struct {
	// Backend is "postgres" or "snapshot".
	Backend string `mapstructure:"backend"`
	// SnapshotPath is a local JSON snapshot used by the snapshot backend.
	SnapshotPath string `mapstructure:"snapshot_path"`
	// SnapshotObject is a MinIO object key; it wins over SnapshotPath when
	// MinIO is enabled.
	SnapshotObject string `mapstructure:"snapshot_object"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// StatementTimeout is sent as a session parameter; zero leaves the
	// server default.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
	// EmbeddingDim is the width of the cosine index built after migrating;
	// zero skips the index.
	EmbeddingDim int `mapstructure:"embedding_dim"`
}

// EmbeddingConfig configures the HTTP embedding provider.
type EmbeddingConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
}

// RedisConfig holds Redis connection parameters for the embedding cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the refresh-event consumer parameters.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topic   string   `mapstructure:"topic"`
	// DeadLetterTopic receives events whose handler kept failing.
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// OpenSearchConfig holds OpenSearch parameters for the lexical index.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MilvusConfig holds Milvus parameters for the vector index.
type MilvusConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Addr             string `mapstructure:"addr"`
	DBName           string `mapstructure:"db_name"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	HNSWEf           int    `mapstructure:"hnsw_ef"`
}

// MinIOConfig holds object-storage parameters for snapshots and rule tables.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// Neo4jConfig holds parameters for the crosswalk link graph.
type Neo4jConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	URI                   string `mapstructure:"uri"`
	User                  string `mapstructure:"user"`
	Password              string `mapstructure:"password"`
	Database              string `mapstructure:"database"`
	MaxConnectionPoolSize int    `mapstructure:"max_connection_pool_size"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// SearchConfig holds the free-text search tunables.
type SearchConfig struct {
	VectorThreshold  float64       `mapstructure:"vector_threshold"`
	TrigramThreshold float64       `mapstructure:"trigram_threshold"`
	RankDecay        float64       `mapstructure:"rank_decay"`
	RecallFactor     int           `mapstructure:"recall_factor"`
	DefaultLimit     int           `mapstructure:"default_limit"`
	MaxLimit         int           `mapstructure:"max_limit"`
	StorageTimeout   time.Duration `mapstructure:"storage_timeout"`
	VectorTimeout    time.Duration `mapstructure:"vector_timeout"`
}

// LinkageConfig holds the clinical linkage tunables.
type LinkageConfig struct {
	VectorThreshold   float64 `mapstructure:"vector_threshold"`
	CandidatePool     int     `mapstructure:"candidate_pool"`
	DefaultLimit      int     `mapstructure:"default_limit"`
	MaxLimit          int     `mapstructure:"max_limit"`
	ApprovalThreshold float64 `mapstructure:"approval_threshold"`
	ConfidenceCeiling float64 `mapstructure:"confidence_ceiling"`
	BaselineScore     float64 `mapstructure:"baseline_score"`
	// RulesPath is a YAML rule table on disk; empty means the built-in table.
	RulesPath string `mapstructure:"rules_path"`
	// RulesObject is a MinIO object key holding a YAML rule table.
	RulesObject string `mapstructure:"rules_object"`
	RecordLinks bool   `mapstructure:"record_links"`
}

// EngineConfig groups the retrieval and linkage settings.
type EngineConfig struct {
	Search  SearchConfig  `mapstructure:"search"`
	Linkage LinkageConfig `mapstructure:"linkage"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Log        logging.LogConfig `mapstructure:"log"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Embedding  EmbeddingConfig   `mapstructure:"embedding"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	Milvus     MilvusConfig      `mapstructure:"milvus"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	Neo4j      Neo4jConfig       `mapstructure:"neo4j"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Engine     EngineConfig      `mapstructure:"engine"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of a defaulted Config.  It returns the
// first error encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("config: server.grpc_port %d is out of range [0, 65535]", c.Server.GRPCPort)
	}

	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required for the postgres backend")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required for the postgres backend")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
		}
	case BackendSnapshot:
		if c.Storage.SnapshotPath == "" && !(c.MinIO.Enabled && c.Storage.SnapshotObject != "") {
			return fmt.Errorf("config: storage.snapshot_path or minio-backed storage.snapshot_object is required for the snapshot backend")
		}
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected postgres|snapshot", c.Storage.Backend)
	}

	if c.Embedding.Enabled && c.Embedding.Endpoint == "" {
		return fmt.Errorf("config: embedding.endpoint is required when embedding is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.topic and kafka.group_id are required when kafka is enabled")
		}
	}
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses is required when opensearch is enabled")
	}
	if c.Milvus.Enabled && c.Milvus.Addr == "" {
		return fmt.Errorf("config: milvus.addr is required when milvus is enabled")
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required when minio is enabled")
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required when neo4j is enabled")
	}

	return c.Engine.Validate()
}

// Validate checks the engine thresholds.  It is also used on hot reload.
func (e EngineConfig) Validate() error {
	s, l := e.Search, e.Linkage
	if !inUnit(s.VectorThreshold) || !inUnit(l.VectorThreshold) {
		return fmt.Errorf("config: engine vector thresholds must be in [0, 1]")
	}
	if !inUnit(s.TrigramThreshold) {
		return fmt.Errorf("config: engine.search.trigram_threshold %.2f must be in [0, 1]", s.TrigramThreshold)
	}
	if s.RankDecay < 0 || s.RankDecay >= 1 {
		return fmt.Errorf("config: engine.search.rank_decay %.3f must be in [0, 1)", s.RankDecay)
	}
	if s.DefaultLimit < 1 || s.DefaultLimit > s.MaxLimit {
		return fmt.Errorf("config: engine.search.default_limit %d must be in [1, max_limit=%d]", s.DefaultLimit, s.MaxLimit)
	}
	if l.DefaultLimit < 1 || l.DefaultLimit > l.MaxLimit {
		return fmt.Errorf("config: engine.linkage.default_limit %d must be in [1, max_limit=%d]", l.DefaultLimit, l.MaxLimit)
	}
	if l.CandidatePool < l.MaxLimit {
		return fmt.Errorf("config: engine.linkage.candidate_pool %d must be ≥ max_limit %d", l.CandidatePool, l.MaxLimit)
	}
	if !inUnit(l.ApprovalThreshold) || !inUnit(l.ConfidenceCeiling) || !inUnit(l.BaselineScore) {
		return fmt.Errorf("config: engine.linkage approval_threshold, confidence_ceiling and baseline_score must be in [0, 1]")
	}
	if l.ApprovalThreshold > l.ConfidenceCeiling {
		return fmt.Errorf("config: engine.linkage.approval_threshold %.2f exceeds confidence_ceiling %.2f", l.ApprovalThreshold, l.ConfidenceCeiling)
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
