package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/internal/backoff"
)

// Executor runs one claimed run to a terminal outcome.
type Executor interface {
	Execute(ctx context.Context, run *core.Run, workerID string) core.Outcome
}

// Worker claims runs from the store and executes them.
type Worker struct {
	store  core.Storage
	exec   Executor
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a worker claiming from store and running claims on exec.
func NewWorker(store core.Storage, exec Executor, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		Concurrency:       1,
		PollInterval:      5 * time.Second,
		WorkerID:          uuid.New().String(),
		HeartbeatInterval: 30 * time.Second,
		StorageRetry:      backoff.DefaultConfig(),
		// Longer backoff for claims to avoid hammering the DB during outages
		ClaimRetry: backoff.Config{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	return &Worker{
		store:  store,
		exec:   exec,
		config: config,
		logger: config.Logger.With("worker_id", config.WorkerID),
	}
}

// ID returns the identity this worker claims runs under.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start runs the claim loops and the reaper. It blocks until ctx is
// cancelled and every in-flight run has finished; cancellation interrupts
// the poll sleep, never an executing run.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started",
		"concurrency", w.config.Concurrency,
		"poll_interval", w.config.PollInterval,
	)

	if w.config.Reaper != nil {
		w.wg.Add(1)
		go w.runReaper(ctx)
	}
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx)
	}

	<-ctx.Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

func (w *Worker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		if w.RunOnce(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.config.PollInterval):
		}
	}
}

// RunOnce claims and executes at most one run. It reports whether a run
// was claimed. Errors and panics are logged, never returned.
func (w *Worker) RunOnce(ctx context.Context) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker loop panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	run, err := w.claimWithRetry(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error("failed to claim after retries", "error", err)
		}
		return false
	}
	if run == nil {
		return false
	}

	w.logger.Info("claimed run", "run_id", run.ID, "template", run.TemplateRef, "dataset", run.DatasetRef)
	w.config.Events.Emit(ctx, &core.RunClaimed{Run: run, WorkerID: w.config.WorkerID, Timestamp: time.Now()})
	w.processRun(ctx, run)
	return true
}

// claimWithRetry claims a run with exponential backoff on failure.
func (w *Worker) claimWithRetry(ctx context.Context) (*core.Run, error) {
	var run *core.Run
	err := backoff.Do(ctx, w.config.ClaimRetry, func() error {
		var claimErr error
		run, claimErr = w.store.Claim(ctx, w.config.WorkerID)
		return claimErr
	})
	return run, err
}

// processRun executes run detached from ctx, so stopping the worker lets
// the run finish, while a heartbeat keeps it from being reaped.
func (w *Worker) processRun(ctx context.Context, run *core.Run) {
	runCtx := context.WithoutCancel(ctx)
	heartbeatCtx, cancelHeartbeat := context.WithCancel(runCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, run)

	out, err := w.execute(runCtx, run)
	cancelHeartbeat()

	if err != nil {
		w.logger.Error("run execution panicked", "run_id", run.ID, "error", err)
		w.failWithRetry(runCtx, run.ID, err.Error())
		return
	}
	w.logger.Debug("run finished", "run_id", run.ID, "status", out.Status)
}

func (w *Worker) execute(ctx context.Context, run *core.Run) (out core.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return w.exec.Execute(ctx, run, w.config.WorkerID), nil
}

// failWithRetry marks a run as failed with retry on transient storage failures.
func (w *Worker) failWithRetry(ctx context.Context, runID, errMsg string) {
	err := backoff.Do(ctx, w.config.StorageRetry, func() error {
		err := w.store.Fail(ctx, runID, w.config.WorkerID, errMsg)
		if errors.Is(err, core.ErrRunNotOwned) || errors.Is(err, core.ErrRunStopped) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		w.logger.Error("failed to mark run as failed after retries", "run_id", runID, "error", err)
	}
}

// runHeartbeat periodically refreshes heartbeat_at during execution.
// This prevents long-running runs from being reaped as stale.
func (w *Worker) runHeartbeat(ctx context.Context, run *core.Run) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := backoff.Do(ctx, w.config.StorageRetry, func() error {
				err := w.store.Heartbeat(ctx, run.ID, w.config.WorkerID)
				if errors.Is(err, core.ErrRunNotOwned) || errors.Is(err, core.ErrRunStopped) {
					return backoff.Permanent(err)
				}
				return err
			})
			switch {
			case err == nil:
				w.logger.Debug("heartbeat sent", "run_id", run.ID)
			case errors.Is(err, core.ErrRunStopped), errors.Is(err, core.ErrRunNotOwned):
				// The executor observes this at its next progress write.
				return
			case ctx.Err() == nil:
				w.logger.Warn("heartbeat failed after retries", "run_id", run.ID, "error", err)
			}
		}
	}
}

// runReaper fails stale running runs on the configured schedule.
func (w *Worker) runReaper(ctx context.Context) {
	defer w.wg.Done()

	for {
		now := time.Now()
		timer := time.NewTimer(w.config.Reaper.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.ReapStale(ctx)
		}
	}
}

// ReapStale fails every running run whose heartbeat is older than the
// configured staleness bound, and returns how many were failed.
func (w *Worker) ReapStale(ctx context.Context) int64 {
	if w.config.StaleAfter <= 0 {
		return 0
	}
	n, err := w.store.FailStaleRuns(ctx, w.config.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to reap stale runs", "error", err)
		}
		return 0
	}
	if n > 0 {
		w.logger.Warn("failed stale runs", "count", n, "stale_after", w.config.StaleAfter)
	}
	return n
}
