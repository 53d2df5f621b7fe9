// Package progress writes a running trainer's progress to the run store.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/events"
	"github.com/jdziat/durable-training/pkg/internal/backoff"
	"github.com/jdziat/durable-training/pkg/pipeline"
)

// Reporter implements pipeline.Progress for one claimed run. Every write
// is guarded by the store on run ownership and running status, so once
// the run is stopped each call returns an error wrapping core.ErrRunStopped.
type Reporter struct {
	store    core.Storage
	runID    string
	workerID string
	retry    backoff.Config
	bus      *events.Bus
	logger   *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRetry sets the backoff used for transient store errors.
func WithRetry(cfg backoff.Config) Option {
	return func(r *Reporter) { r.retry = cfg }
}

// WithEvents emits an EpochCompleted event per recorded epoch.
func WithEvents(b *events.Bus) Option {
	return func(r *Reporter) { r.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReporter returns a reporter for runID as claimed by workerID.
func NewReporter(store core.Storage, runID, workerID string, opts ...Option) *Reporter {
	r := &Reporter{
		store:    store,
		runID:    runID,
		workerID: workerID,
		retry:    backoff.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start records the total epoch count and device with current_epoch 0.
func (r *Reporter) Start(ctx context.Context, totalEpochs int, device string) error {
	return r.write(ctx, core.Progress{CurrentEpoch: 0, TotalEpochs: totalEpochs, Device: device})
}

// Epoch records a finished epoch.
func (r *Reporter) Epoch(ctx context.Context, s pipeline.EpochStats) error {
	if err := r.write(ctx, core.Progress{CurrentEpoch: s.Epoch, TotalEpochs: s.Total}); err != nil {
		return err
	}
	r.bus.Emit(ctx, &core.EpochCompleted{
		RunID:     r.runID,
		Epoch:     s.Epoch,
		Total:     s.Total,
		TrainLoss: s.TrainLoss,
		ValLoss:   s.ValLoss,
		Improved:  s.Improved,
		Timestamp: time.Now(),
	})
	return nil
}

// CheckStopped re-reads the run and reports whether a stop was requested.
// A run that now belongs to another worker is treated as lost ownership.
func (r *Reporter) CheckStopped(ctx context.Context) error {
	var run *core.Run
	err := backoff.Do(ctx, r.retry, func() error {
		var err error
		run, err = r.store.GetRun(ctx, r.runID)
		if errors.Is(err, core.ErrRunNotFound) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("check stop for run %s: %w", r.runID, err)
	}
	switch {
	case run.Status == core.StatusStopped:
		return fmt.Errorf("run %s: %w", r.runID, core.ErrRunStopped)
	case run.Status != core.StatusRunning || run.ClaimedBy != r.workerID:
		return fmt.Errorf("run %s is %s, claimed by %q: %w", r.runID, run.Status, run.ClaimedBy, core.ErrRunNotOwned)
	}
	return nil
}

func (r *Reporter) write(ctx context.Context, p core.Progress) error {
	err := backoff.Do(ctx, r.retry, func() error {
		err := r.store.ReportProgress(ctx, r.runID, r.workerID, p)
		if isOwnershipError(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		if !isOwnershipError(err) {
			r.logger.Error("progress write failed after retries", "run_id", r.runID, "epoch", p.CurrentEpoch, "error", err)
		}
		return err
	}
	return nil
}

func isOwnershipError(err error) bool {
	return errors.Is(err, core.ErrRunStopped) ||
		errors.Is(err, core.ErrRunNotOwned) ||
		errors.Is(err, core.ErrRunNotFound)
}

var _ pipeline.Progress = (*Reporter)(nil)
