package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 8181
  request_timeout: 4s
log:
  level: debug
  format: console
storage:
  backend: snapshot
  snapshot_path: /var/lib/codelink/catalog.json
embedding:
  enabled: true
  endpoint: http://embedder:8000/v1/embeddings
  rate_limit: 20
redis:
  enabled: true
  addr: redis:6379
engine:
  search:
    vector_threshold: 0.55
    max_limit: 50
  linkage:
    vector_threshold: 0.35
    rules_path: /etc/codelink/rules.yaml
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 4*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, BackendSnapshot, cfg.Storage.Backend)
	assert.True(t, cfg.Embedding.Enabled)
	assert.Equal(t, 20.0, cfg.Embedding.RateLimit)
	assert.Equal(t, 0.55, cfg.Engine.Search.VectorThreshold)
	assert.Equal(t, 50, cfg.Engine.Search.MaxLimit)
	assert.Equal(t, 0.35, cfg.Engine.Linkage.VectorThreshold)
	assert.Equal(t, "/etc/codelink/rules.yaml", cfg.Engine.Linkage.RulesPath)
	// untouched values fall back to defaults
	assert.Equal(t, DefaultApprovalThreshold, cfg.Engine.Linkage.ApprovalThreshold)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  backend: cassandra\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("CODELINK_SERVER_PORT", "9090")
	t.Setenv("CODELINK_ENGINE_LINKAGE_APPROVAL_THRESHOLD", "0.7")

	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.7, cfg.Engine.Linkage.ApprovalThreshold)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CODELINK_STORAGE_BACKEND", "snapshot")
	t.Setenv("CODELINK_STORAGE_SNAPSHOT_PATH", "/tmp/catalog.json")
	t.Setenv("CODELINK_DATABASE_HOST", "db.internal")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendSnapshot, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/catalog.json", cfg.Storage.SnapshotPath)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	changed := make(chan *Config, 1)

	require.NoError(t, Watch(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	}, nil))

	updated := validConfigYAML + "    approval_threshold: 0.72\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case c := <-changed:
		assert.Equal(t, 0.72, c.Engine.Linkage.ApprovalThreshold)
	case <-time.After(5 * time.Second):
		t.Skip("filesystem notifications unavailable in this environment")
	}
}
