package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/durable-training/pkg/core"
)

// newMockPostgresStorage wires a run store to a sqlmock connection that
// GORM treats as PostgreSQL, so the generated claim SQL can be inspected
// without a server.
func newMockPostgresStorage(t *testing.T) (*GormStorage, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStorage(db), mock
}

var runColumns = []string{"id", "status", "dataset_ref", "template_ref", "version", "created_at"}

func TestClaim_Postgres_UsesSkipLocked(t *testing.T) {
	s, mock := newMockPostgresStorage(t)
	require.True(t, s.supportsSkipLocked())

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "training_runs" WHERE status IN .* ORDER BY created_at ASC,id ASC LIMIT .* FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("run-1", "pending", "ds-1", "TCN", 3, created))
	mock.ExpectExec(`UPDATE "training_runs" SET .* WHERE .*id = .* version = .*status IN`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	run, err := s.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, core.StatusRunning, run.Status)
	assert.Equal(t, "worker-1", run.ClaimedBy)
	assert.Equal(t, 4, run.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_Postgres_EmptyCommitsAndReturnsNil(t *testing.T) {
	s, mock := newMockPostgresStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(runColumns))
	mock.ExpectCommit()

	run, err := s.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_Postgres_LostCompareAndSetReturnsNil(t *testing.T) {
	s, mock := newMockPostgresStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("run-1", "pending", "ds-1", "TCN", 0, time.Now()))
	mock.ExpectExec(`UPDATE "training_runs"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	run, err := s.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, run, "a run stopped between select and update is not handed out")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaim_Postgres_QueryErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStorage(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	run, err := s.Claim(context.Background(), "worker-1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}
