package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"snapshot without source", func(c *Config) { c.Storage.Backend = BackendSnapshot }, "snapshot_path"},
		{"embedding without endpoint", func(c *Config) { c.Embedding.Enabled = true }, "embedding.endpoint"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"opensearch without addresses", func(c *Config) { c.OpenSearch.Enabled = true }, "opensearch.addresses"},
		{"minio without endpoint", func(c *Config) { c.MinIO.Enabled = true }, "minio.endpoint"},
		{"neo4j without uri", func(c *Config) { c.Neo4j.Enabled = true }, "neo4j.uri"},
		{"vector threshold above one", func(c *Config) { c.Engine.Search.VectorThreshold = 1.2 }, "vector thresholds"},
		{"rank decay of one", func(c *Config) { c.Engine.Search.RankDecay = 1 }, "rank_decay"},
		{"default above max", func(c *Config) { c.Engine.Search.DefaultLimit = 500 }, "default_limit"},
		{"pool below max", func(c *Config) { c.Engine.Linkage.CandidatePool = 5 }, "candidate_pool"},
		{"approval above ceiling", func(c *Config) {
			c.Engine.Linkage.ApprovalThreshold = 0.97
		}, "exceeds confidence_ceiling"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestValidate_SnapshotBackendWithPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Backend = BackendSnapshot
	cfg.Storage.SnapshotPath = "testdata/catalog.json"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SnapshotBackendWithMinIOObject(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Backend = BackendSnapshot
	cfg.Storage.SnapshotObject = "snapshots/latest.json"
	cfg.MinIO.Enabled = true
	cfg.MinIO.Endpoint = "localhost:9000"
	assert.NoError(t, cfg.Validate())
}
