package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_NilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_EngineHeuristics(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 0.5, cfg.Engine.Search.VectorThreshold)
	assert.Equal(t, 0.4, cfg.Engine.Linkage.VectorThreshold)
	assert.Equal(t, 0.65, cfg.Engine.Linkage.ApprovalThreshold)
	assert.Equal(t, 0.95, cfg.Engine.Linkage.ConfidenceCeiling)
	assert.Equal(t, 0.5, cfg.Engine.Linkage.BaselineScore)
	assert.Equal(t, DefaultTrigramThreshold, cfg.Engine.Search.TrigramThreshold)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Engine.Linkage.ApprovalThreshold = 0.7
	cfg.Kafka.Brokers = []string{"kafka-1:9092", "kafka-2:9092"}

	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 0.7, cfg.Engine.Linkage.ApprovalThreshold)
	assert.Len(t, cfg.Kafka.Brokers, 2)
	assert.Equal(t, DefaultRedisPrefix, cfg.Redis.KeyPrefix)
}
