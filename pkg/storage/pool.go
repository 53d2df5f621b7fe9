package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration // 0 keeps connections forever
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool used when nothing else is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// PoolConfigForWorkers sizes the pool for a worker process running
// concurrency training loops. Each loop holds at most one connection for
// its claim or progress write and one for its heartbeat; two more cover
// the stale-run reaper and status queries.
func PoolConfigForWorkers(concurrency int) PoolConfig {
	if concurrency < 1 {
		concurrency = 1
	}
	cfg := DefaultPoolConfig()
	cfg.MaxOpenConns = 2*concurrency + 2
	cfg.MaxIdleConns = concurrency + 1
	return cfg
}

// SQLitePoolConfig pins SQLite to a single connection. SQLite serializes
// writers anyway, and an in-memory database exists per connection.
func SQLitePoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}
}

// ConfigurePool applies cfg to a GORM database connection.
func ConfigurePool(db *gorm.DB, cfg PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return nil
}

// NewGormStorageWithPool creates a run store with connection pooling configured.
//
// Example:
//
//	store, err := NewGormStorageWithPool(db, PoolConfigForWorkers(4))
func NewGormStorageWithPool(db *gorm.DB, cfg PoolConfig) (*GormStorage, error) {
	if err := ConfigurePool(db, cfg); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
