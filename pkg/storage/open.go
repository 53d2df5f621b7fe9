package storage

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// OpenConfig describes how to reach the run store database.
type OpenConfig struct {
	Driver string
	DSN    string

	// Pool is applied to PostgreSQL and MySQL. SQLite always uses SQLitePoolConfig.
	Pool PoolConfig

	// Logger receives slow-query and error logs. Nil silences GORM.
	Logger *slog.Logger
}

// Dialector returns the GORM dialector for driver and dsn.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return sqlite.Open(sqliteDSN(dsn)), nil
	case DriverPostgres, "postgresql", "pg":
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

// sqliteDSN makes every transaction take the write lock when it begins
// and wait for a competing writer, so two processes sharing one file never
// fail a claim with "database is locked". Parameters already in dsn win.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, param := range []string{"_txlock=immediate", "_busy_timeout=5000"} {
		key, _, _ := strings.Cut(param, "=")
		if strings.Contains(dsn, key+"=") {
			continue
		}
		dsn += sep + param
		sep = "&"
	}
	return dsn
}

// Open connects to the configured database and returns a run store with
// its pool configured. The schema is not migrated.
func Open(cfg OpenConfig) (*GormStorage, error) {
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.Logger != nil {
		gormLogger = logger.NewSlogLogger(cfg.Logger, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s failed: %w", cfg.Driver, err)
	}

	pool := cfg.Pool
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	if db.Dialector.Name() == DriverSQLite {
		pool = SQLitePoolConfig()
	}
	s, err := NewGormStorageWithPool(db, pool)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("%s ping failed: %w", cfg.Driver, err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
