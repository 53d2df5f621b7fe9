package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "trainer.db", cfg.Database.DSN)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "runs", cfg.WorkDir)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 10*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, "@every 1m", cfg.Worker.ReaperSchedule)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRAINER_DATABASE_DRIVER", "postgres")
	t.Setenv("TRAINER_DATABASE_DSN", "postgres://trainer@db/trainer")
	t.Setenv("TRAINER_WORKER_CONCURRENCY", "4")
	t.Setenv("TRAINER_WORKER_POLL_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://trainer@db/trainer", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/datasets
worker:
  concurrency: 2
  stale_after: 15m
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/datasets", cfg.DataDir)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "runs", cfg.WorkDir, "unset keys keep defaults")
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainerd.toml")
	require.NoError(t, os.WriteFile(path, []byte("work_dir = \"/from/file\"\n"), 0o644))
	t.Setenv("TRAINER_WORK_DIR", "/from/env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.WorkDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "unsupported db driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, "worker.concurrency"},
		{"stale below heartbeat", func(c *Config) { c.Worker.StaleAfter = time.Second }, "worker.stale_after"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestPool(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Worker.Concurrency = 4
	assert.Equal(t, 10, cfg.Pool().MaxOpenConns)

	cfg.Database.MaxOpenConns = 3
	assert.Equal(t, 3, cfg.Pool().MaxOpenConns)
}
