// Package runner executes one claimed run: it resolves the run's inputs,
// dispatches to the registered trainer and makes the single terminal
// write. Every error and panic below it becomes a failed run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
	"github.com/jdziat/durable-training/pkg/device"
	"github.com/jdziat/durable-training/pkg/events"
	"github.com/jdziat/durable-training/pkg/internal/backoff"
	"github.com/jdziat/durable-training/pkg/pipeline"
	"github.com/jdziat/durable-training/pkg/progress"
	"github.com/jdziat/durable-training/pkg/security"
	"github.com/jdziat/durable-training/pkg/workarea"
)

// Executor runs claimed runs to a terminal outcome. It holds no per-run
// state and is safe for concurrent use.
type Executor struct {
	store    core.Storage
	registry *pipeline.Registry
	areas    *workarea.Manager
	dataDir  string
	retry    backoff.Config
	bus      *events.Bus
	logger   *slog.Logger
	detect   func(context.Context) device.Info
}

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry sets the trainer registry. Defaults to pipeline.DefaultRegistry.
func WithRegistry(r *pipeline.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithDataDir sets the directory relative dataset paths are retried under.
func WithDataDir(dir string) Option {
	return func(e *Executor) { e.dataDir = dir }
}

// WithStorageRetry sets the backoff for store writes.
func WithStorageRetry(cfg backoff.Config) Option {
	return func(e *Executor) { e.retry = cfg }
}

// WithEvents sets the bus lifecycle events are emitted on.
func WithEvents(b *events.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor returns an executor writing to store and creating run
// directories through areas.
func NewExecutor(store core.Storage, areas *workarea.Manager, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		registry: pipeline.DefaultRegistry(),
		areas:    areas,
		retry:    backoff.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detect == nil {
		e.detect = func(ctx context.Context) device.Info { return device.Detect(ctx, e.logger) }
	}
	return e
}

// Execute runs a run claimed by workerID and returns how it ended.
//
// The stop flag is read first, before any input is loaded. A run already
// stopped executes zero epochs and gets no further write.
func (e *Executor) Execute(ctx context.Context, run *core.Run, workerID string) core.Outcome {
	start := time.Now()
	logger := e.logger.With("run_id", run.ID, "worker_id", workerID, "template", run.TemplateRef)
	reporter := progress.NewReporter(e.store, run.ID, workerID,
		progress.WithRetry(e.retry),
		progress.WithEvents(e.bus),
		progress.WithLogger(logger),
	)

	if err := reporter.CheckStopped(ctx); err != nil {
		return e.finishWithoutResult(ctx, run, 0, err, logger)
	}

	result, err := e.train(ctx, run, reporter, logger)
	if err != nil {
		return e.finishWithError(ctx, run, workerID, err, logger)
	}

	err = backoff.Do(ctx, e.retry, func() error {
		return permanentIfOwnership(e.store.Complete(ctx, run.ID, workerID, *result))
	})
	if err != nil {
		return e.finishWithoutResult(ctx, run, result.EpochsRun, err, logger)
	}

	logger.Info("run completed",
		"best_val_loss", result.BestMetricValue,
		"epochs", result.EpochsRun,
		"duration", time.Since(start),
	)
	e.bus.Emit(ctx, &core.RunCompleted{Run: run, Result: *result, Duration: time.Since(start), Timestamp: time.Now()})
	return core.Outcome{RunID: run.ID, Status: core.StatusCompleted}
}

// train resolves inputs and runs the trainer. Panics become errors.
func (e *Executor) train(ctx context.Context, run *core.Run, reporter *progress.Reporter, logger *slog.Logger) (res *core.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("trainer panicked", "panic", r, "stack", string(debug.Stack()))
			err = errors.Newf("internal error: %v", r)
		}
	}()

	ds, err := e.store.GetDataset(ctx, run.DatasetRef)
	if err != nil {
		return nil, err
	}
	path, err := dataset.Resolve(ds.FilePath, e.dataDir)
	if err != nil {
		return nil, err
	}
	table, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}

	tpl, err := e.store.GetTemplate(ctx, run.TemplateRef)
	if err != nil {
		if errors.Is(err, core.ErrTemplateNotFound) {
			return nil, core.AsConfigError(err)
		}
		return nil, err
	}
	trainer, err := e.registry.Lookup(tpl.Name)
	if err != nil {
		return nil, err
	}
	hp := core.MergeHyperparameters(tpl.DefaultHyperparameters, run.Hyperparameters)

	area, err := e.areas.Prepare(run.ID)
	if err != nil {
		return nil, err
	}
	dev := e.detect(ctx)
	logger.Info("executing run", append([]any{"dataset", ds.Name, "rows", table.Len()}, dev.LogAttrs()...)...)

	return trainer.Train(ctx, &pipeline.Job{
		RunID:           run.ID,
		Table:           table,
		Columns:         ds.Columns(),
		Hyperparameters: hp,
		Area:            area,
		Device:          dev.Name,
		Progress:        reporter,
		Logger:          logger,
	})
}

// finishWithError funnels a training error into the matching terminal outcome.
func (e *Executor) finishWithError(ctx context.Context, run *core.Run, workerID string, err error, logger *slog.Logger) core.Outcome {
	if isOwnership(err) {
		return e.finishWithoutResult(ctx, run, -1, err, logger)
	}

	msg := ErrorMessage(err)
	logger.Error("run failed", "error", msg, "config_error", core.IsConfigError(err))
	failErr := backoff.Do(ctx, e.retry, func() error {
		return permanentIfOwnership(e.store.Fail(ctx, run.ID, workerID, msg))
	})
	if failErr != nil {
		if isOwnership(failErr) {
			return e.finishWithoutResult(ctx, run, -1, failErr, logger)
		}
		logger.Error("failed to mark run as failed after retries", "error", failErr)
	}
	e.bus.Emit(ctx, &core.RunFailed{Run: run, Error: err, Timestamp: time.Now()})
	return core.Outcome{RunID: run.ID, Status: core.StatusFailed, Err: err}
}

// finishWithoutResult handles a run this worker may no longer write to:
// it was stopped, or its ownership was lost. epochs < 0 means unknown.
func (e *Executor) finishWithoutResult(ctx context.Context, run *core.Run, epochs int, err error, logger *slog.Logger) core.Outcome {
	if errors.Is(err, core.ErrRunStopped) {
		if epochs < 0 {
			epochs = 0
			if cur, getErr := e.store.GetRun(ctx, run.ID); getErr == nil {
				epochs = cur.CurrentEpoch
			}
		}
		logger.Info("run stopped, exiting without result", "epochs", epochs)
		e.bus.Emit(ctx, &core.RunStopped{Run: run, Epoch: epochs, Timestamp: time.Now()})
		return core.Outcome{RunID: run.ID, Status: core.StatusStopped}
	}
	logger.Warn("run no longer owned by this worker", "error", err)
	return core.Outcome{RunID: run.ID, Status: core.StatusFailed, Err: err}
}

// ErrorMessage renders err for display: the error text followed by any
// hints attached to it, sanitized for storage.
func ErrorMessage(err error) string {
	msg := err.Error()
	if hints := errors.FlattenHints(err); hints != "" {
		msg = fmt.Sprintf("%s\nhint: %s", msg, strings.ReplaceAll(hints, "\n--\n", "\nhint: "))
	}
	return security.SanitizeErrorMessage(msg)
}

func isOwnership(err error) bool {
	return errors.Is(err, core.ErrRunStopped) || errors.Is(err, core.ErrRunNotOwned)
}

func permanentIfOwnership(err error) error {
	if isOwnership(err) || errors.Is(err, core.ErrRunNotFound) {
		return backoff.Permanent(err)
	}
	return err
}
