package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/durable-training/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance pinned to one connection, since
// every SQLite connection to ":memory:" sees its own database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(8)
		sqlDB.SetMaxIdleConns(2)

		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(t, db)
		t.Cleanup(func() {
			cleanupPostgresDB(t, db)
			_ = sqlDB.Close()
		})
		return db
	}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, ConfigurePool(db, SQLitePoolConfig()))
	return db
}

// cleanupPostgresDB deletes all rows so tests are isolated without
// requiring a fresh database per test.
func cleanupPostgresDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, tbl := range []string{"training_runs", "datasets", "model_templates"} {
		if db.Migrator().HasTable(tbl) {
			db.Exec("DELETE FROM " + tbl)
		}
	}
}

// newTestStorage creates a migrated store for each test.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

// newTestRun builds a pending run created at the given offset from a fixed
// base time, so claim order does not depend on clock resolution.
func newTestRun(offset time.Duration) *core.Run {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &core.Run{
		DatasetRef:      "ds-1",
		TemplateRef:     "TCN",
		Hyperparameters: map[string]any{"epochs": 2},
		CreatedAt:       base.Add(offset),
	}
}

// createClaimed inserts a run and claims it for workerID.
func createClaimed(t *testing.T, s *GormStorage, workerID string) *core.Run {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, newTestRun(0)))
	run, err := s.Claim(ctx, workerID)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}
