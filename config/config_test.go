package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 768, cfg.VectorDB.Dimension)
	assert.Equal(t, 1000, cfg.Document.ChunkSize)
	assert.Equal(t, 200, cfg.Document.ChunkOverlap)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, int64(20<<20), cfg.Ingest.MaxUploadBytes())
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Zero(t, cfg.Search.MaxDistance)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
vectordb:
  type: pgvector
  dsn: postgres://localhost/quiz
  dimension: 1024
embed:
  dimensions: 1024
search:
  max_distance: 0.6
queue:
  enable: true
  retry_delay: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "pgvector", cfg.VectorDB.Type)
	assert.Equal(t, 1024, cfg.VectorDB.Dimension)
	assert.InDelta(t, 0.6, cfg.Search.MaxDistance, 1e-6)
	assert.True(t, cfg.Queue.Enable)
	assert.Equal(t, 5*time.Second, cfg.Queue.RetryDelay)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("QUIZ_TEST_KEY", "secret-key")

	path := writeConfig(t, `
llm:
  api_key: ${QUIZ_TEST_KEY}
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
}

func TestValidateRejectsMismatchedDimensions(t *testing.T) {
	path := writeConfig(t, `
vectordb:
  dimension: 512
embed:
  dimensions: 768
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must match")
}

func TestExpandEnvKeepsUnsetVariables(t *testing.T) {
	assert.Equal(t, "${QUIZ_UNSET_VARIABLE}", expandEnv("${QUIZ_UNSET_VARIABLE}"))
	assert.Equal(t, "plain", expandEnv("plain"))
}
