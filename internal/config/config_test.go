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
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://crm@localhost/crm?sslmode=disable"
  max_open_conns: 40

redis:
  url: "redis://localhost:6379/2"

scoring:
  batch_size: 100
  concurrency: 4
  window_days: 60
  lock_ttl_seconds: 120

triggers:
  concurrency: 16

segments:
  default_page_size: 25
  max_page_size: 200

log:
  level: debug
  redact_pii: false

metrics:
  namespace: leads
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://crm@localhost/crm?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)

	assert.Equal(t, 100, cfg.Scoring.BatchSize)
	assert.Equal(t, 4, cfg.Scoring.Concurrency)
	assert.Equal(t, 60, cfg.Scoring.WindowDays)
	assert.Equal(t, 2*time.Minute, cfg.Scoring.LockTTL())

	assert.Equal(t, 16, cfg.Triggers.Concurrency)
	assert.Equal(t, 25, cfg.Segments.DefaultPageSize)
	assert.Equal(t, 200, cfg.Segments.MaxPageSize)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())
	assert.Equal(t, "leads", cfg.Metrics.Namespace)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  url: postgres://x\n"))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime())
	assert.Equal(t, 50, cfg.Scoring.BatchSize)
	assert.Equal(t, 8, cfg.Scoring.Concurrency)
	assert.Equal(t, 90, cfg.Scoring.WindowDays)
	assert.Equal(t, 10*time.Minute, cfg.Scoring.LockTTL())
	assert.Equal(t, 8, cfg.Triggers.Concurrency)
	assert.Equal(t, 50, cfg.Segments.DefaultPageSize)
	assert.Equal(t, 500, cfg.Segments.MaxPageSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Redact())
	assert.Equal(t, "crm", cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://file"
scoring:
  batch_size: 10
`)

	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("CRM_LOG_LEVEL", "warn")
	t.Setenv("CRM_SCORING_BATCH_SIZE", "75")
	t.Setenv("CRM_SCORING_CONCURRENCY", "3")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 75, cfg.Scoring.BatchSize)
	assert.Equal(t, 3, cfg.Scoring.Concurrency)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-only")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-only", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Scoring.BatchSize)
}

func TestLoadFromEnv_BadInteger(t *testing.T) {
	t.Setenv("CRM_SCORING_CONCURRENCY", "many")

	_, err := LoadFromEnv("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRM_SCORING_CONCURRENCY")
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "scoring: [not, a, map"))
	assert.Error(t, err)
}
