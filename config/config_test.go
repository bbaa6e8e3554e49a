package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
calendar:
  shifts:
    - {name: morning, start: "08:00", end: "12:00"}
  lunch: {start: "12:00", end: "13:00"}
lines:
  - {id: L1, name: Line 1, rate_min: 900, rate_max: 1100}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "line-status:events", cfg.Redis.Stream)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 240, cfg.Calendar.PlannedMinutes)
	assert.Equal(t, 120*time.Second, cfg.Scheduler.EnforceInterval)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StoreTimeout)
	assert.Equal(t, "none", cfg.Activity.Source)
	assert.Equal(t, "info", cfg.Log.Level)
	require.Len(t, cfg.Lines, 1)
	assert.Equal(t, 1100, cfg.Lines[0].RateMax)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file:lines.db"
`)
	t.Setenv("DATABASE_DSN", "file::memory:")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
