package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	assert.Equal(t, "./data", cfg.Store.DataDir)
	assert.False(t, cfg.Store.InMemory)
	assert.Equal(t, 10*time.Second, cfg.Store.CommitTimeout)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvRespectsOverrides(t *testing.T) {
	t.Setenv("SCHEMAGRAPH_DATA_DIR", "/tmp/schemagraph")
	t.Setenv("SCHEMAGRAPH_IN_MEMORY", "true")
	t.Setenv("SCHEMAGRAPH_COMMIT_TIMEOUT", "2s")
	t.Setenv("SCHEMAGRAPH_LOG_LEVEL", "debug")

	cfg := LoadFromEnv()
	assert.Equal(t, "/tmp/schemagraph", cfg.Store.DataDir)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, 2*time.Second, cfg.Store.CommitTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Logging.Level = "VERBOSE"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveCommitTimeout(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Store.CommitTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingBootstrapFile(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Bootstrap.SchemaFile = "/nonexistent/schema.yaml"
	assert.Error(t, cfg.Validate())
}
