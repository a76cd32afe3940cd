package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 120*time.Second, cfg.PerplexityTimeout())
	assert.Equal(t, 3, cfg.PerplexityMaxRetries)
	assert.Equal(t, 180*time.Second, cfg.ClaudeTimeout())
	assert.Equal(t, 3, cfg.ClaudeMaxRetries)
	assert.Equal(t, 15000, cfg.ClaudeMaxTokens)
	assert.Equal(t, time.Second, cfg.BackoffUnit())
	assert.Equal(t, "@every 10m", cfg.JobSweepSchedule)
	assert.Equal(t, 0.5, cfg.CreateRPS)
	assert.Equal(t, 5, cfg.CreateBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PERPLEXITY_TIMEOUT", "5")
	t.Setenv("CLAUDE_MAX_RETRIES", "0")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("JOB_RETENTION", "2h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PerplexityTimeout())
	assert.Equal(t, 0, cfg.ClaudeMaxRetries)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 2*time.Hour, cfg.JobRetention)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "many")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotEnvKeepsProcessEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OUTPUT_DIR=from-file\nLOG_LEVEL=debug\n"), 0o600))

	t.Setenv("OUTPUT_DIR", "from-process")
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	t.Cleanup(func() { _ = os.Unsetenv("LOG_LEVEL") })

	assert.Equal(t, "from-process", os.Getenv("OUTPUT_DIR"))
	assert.Equal(t, "debug", os.Getenv("LOG_LEVEL"))
}
