// Package config loads trainerd configuration from defaults, an optional
// file and TRAINER_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jdziat/durable-training/pkg/logging"
	"github.com/jdziat/durable-training/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g. TRAINER_DATABASE_DSN.
const EnvPrefix = "TRAINER"

// Config is the full process configuration.
type Config struct {
	Database      DatabaseConfig `mapstructure:"database"`
	DataDir       string         `mapstructure:"data_dir"`
	WorkDir       string         `mapstructure:"work_dir"`
	TemplatesFile string         `mapstructure:"templates_file"`
	Worker        WorkerConfig   `mapstructure:"worker"`
	Log           LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects the run store.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// WorkerConfig tunes the worker loop.
type WorkerConfig struct {
	ID                string        `mapstructure:"id"`
	Concurrency       int           `mapstructure:"concurrency"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	ReaperSchedule    string        `mapstructure:"reaper_schedule"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SetDefaults registers the default of every key. Keys without a default
// cannot be overridden from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.dsn", "trainer.db")
	v.SetDefault("database.max_open_conns", 0) // derived from worker.concurrency
	v.SetDefault("database.max_idle_conns", 0)

	v.SetDefault("data_dir", "data")
	v.SetDefault("work_dir", "runs")
	v.SetDefault("templates_file", "")

	v.SetDefault("worker.id", "")
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("worker.heartbeat_interval", 30*time.Second)
	v.SetDefault("worker.stale_after", 10*time.Minute)
	v.SetDefault("worker.reaper_schedule", "@every 1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. path may be empty; otherwise it names a TOML,
// YAML or JSON file whose type is taken from its extension.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the worker cannot run with.
func (c *Config) Validate() error {
	if _, err := storage.Dialector(c.Database.Driver, c.Database.DSN); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be set")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker.heartbeat_interval must be positive")
	}
	if c.Worker.StaleAfter <= c.Worker.HeartbeatInterval {
		return fmt.Errorf("worker.stale_after (%s) must exceed worker.heartbeat_interval (%s)",
			c.Worker.StaleAfter, c.Worker.HeartbeatInterval)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Pool returns the connection pool settings for the configured store.
func (c *Config) Pool() storage.PoolConfig {
	pool := storage.PoolConfigForWorkers(c.Worker.Concurrency)
	if c.Database.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.Database.MaxIdleConns
	}
	return pool
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config(c.Log)
}
