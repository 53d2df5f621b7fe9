package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-training/pkg/core"
)

// skipIfNotPostgres skips the test when TEST_DATABASE_URL is not set.
func skipIfNotPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL-specific test")
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim: FOR UPDATE SKIP LOCKED
// ──────────────────────────────────────────────────────────────────────────────

func TestClaim_PostgreSQL_ConcurrentClaimersGetDistinctRuns(t *testing.T) {
	skipIfNotPostgres(t)

	ctx := context.Background()
	s := newTestStorage(t)
	require.True(t, s.supportsSkipLocked())

	const runs = 6
	for i := range runs {
		require.NoError(t, s.CreateRun(ctx, newTestRun(time.Duration(i)*time.Second)))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]string{}
		errs    []error
		wg      sync.WaitGroup
	)

	for w := range runs {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			workerID := "worker-" + string(rune('a'+w))
			for {
				run, err := s.Claim(ctx, workerID)
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				if run == nil {
					mu.Unlock()
					return
				}
				if prev, dup := claimed[run.ID]; dup {
					errs = append(errs, assert.AnError)
					t.Errorf("run %s claimed by %s and %s", run.ID, prev, workerID)
				}
				claimed[run.ID] = workerID
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Len(t, claimed, runs, "every run should be claimed exactly once")
}

func TestClaim_PostgreSQL_NoPendingRuns(t *testing.T) {
	skipIfNotPostgres(t)

	s := newTestStorage(t)
	run, err := s.Claim(context.Background(), "worker")
	assert.NoError(t, err)
	assert.Nil(t, run)
}

func TestClaim_PostgreSQL_SkipsRunningRuns(t *testing.T) {
	skipIfNotPostgres(t)

	ctx := context.Background()
	s := newTestStorage(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun(0)))

	got, err := s.Claim(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	got2, err := s.Claim(ctx, "worker-2")
	assert.NoError(t, err)
	assert.Nil(t, got2, "should not claim an already-running run")
}

// ──────────────────────────────────────────────────────────────────────────────
// Stop racing a claim
// ──────────────────────────────────────────────────────────────────────────────

func TestStop_PostgreSQL_RacingClaimLeavesOneWinner(t *testing.T) {
	skipIfNotPostgres(t)

	ctx := context.Background()
	s := newTestStorage(t)
	run := newTestRun(0)
	require.NoError(t, s.CreateRun(ctx, run))

	var wg sync.WaitGroup
	var claimed *core.Run
	var stopErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		claimed, _ = s.Claim(ctx, "worker-1")
	}()
	go func() {
		defer wg.Done()
		stopErr = s.Stop(ctx, run.ID)
	}()
	wg.Wait()

	require.NoError(t, stopErr, "a pending or running run is always stoppable")
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, got.Status)

	if claimed != nil {
		// The claimer won first; its later writes must observe the stop.
		err := s.ReportProgress(ctx, run.ID, "worker-1", core.Progress{CurrentEpoch: 1, TotalEpochs: 2})
		assert.ErrorIs(t, err, core.ErrRunStopped)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Dialect detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_DetectsPostgreSQL(t *testing.T) {
	skipIfNotPostgres(t)

	db := openTestDB(t)
	s := NewGormStorage(db)
	assert.Equal(t, DriverPostgres, s.dialect())
}
