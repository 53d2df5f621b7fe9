package training

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jdziat/durable-training/pkg/catalog"
	"github.com/jdziat/durable-training/pkg/config"
	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/events"
	"github.com/jdziat/durable-training/pkg/logging"
	"github.com/jdziat/durable-training/pkg/pipeline"
	"github.com/jdziat/durable-training/pkg/runner"
	"github.com/jdziat/durable-training/pkg/schedule"
	"github.com/jdziat/durable-training/pkg/storage"
	"github.com/jdziat/durable-training/pkg/workarea"
	"github.com/jdziat/durable-training/pkg/worker"
)

// App is a fully wired trainer process: store, executor, worker and
// event bus built from one Config.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *storage.GormStorage
	Events *events.Bus

	logCloser io.Closer
}

// NewApp opens the store and builds the logger described by cfg.
// A nil logger builds one from cfg.Log.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var closer io.Closer = io.NopCloser(nil)
	if logger == nil {
		var err error
		logger, closer, err = logging.New(cfg.Logging())
		if err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(storage.OpenConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Pool:   cfg.Pool(),
		Logger: logger,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	bus := events.NewBus()
	bus.SetLogger(logger)
	return &App{Config: cfg, Logger: logger, Store: store, Events: bus, logCloser: closer}, nil
}

// Close releases the database connection and log file.
func (a *App) Close() error {
	err := a.Store.Close()
	if cerr := a.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}

// Templates returns the configured catalog: templates_file when set,
// otherwise the built-in templates.
func (a *App) Templates() ([]catalog.Definition, error) {
	if a.Config.TemplatesFile == "" {
		return catalog.Builtin(), nil
	}
	return catalog.LoadFile(a.Config.TemplatesFile)
}

// Setup migrates the schema and seeds the template catalog.
func (a *App) Setup(ctx context.Context) error {
	if err := a.Store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defs, err := a.Templates()
	if err != nil {
		return err
	}
	return catalog.Seed(ctx, a.Store, defs)
}

// Executor builds the run executor. A nil registry uses the built-in trainers.
func (a *App) Executor(registry *pipeline.Registry) *runner.Executor {
	if registry == nil {
		registry = pipeline.DefaultRegistry()
	}
	return runner.NewExecutor(a.Store, workarea.NewManager(a.Config.WorkDir, a.Logger),
		runner.WithRegistry(registry),
		runner.WithDataDir(a.Config.DataDir),
		runner.WithEvents(a.Events),
		runner.WithLogger(a.Logger),
	)
}

// Worker builds a worker from the worker section of the config.
func (a *App) Worker(exec worker.Executor, extra ...worker.WorkerOption) (*worker.Worker, error) {
	wc := a.Config.Worker
	opts := []worker.WorkerOption{
		worker.Concurrency(wc.Concurrency),
		worker.PollInterval(wc.PollInterval),
		worker.WorkerID(wc.ID),
		worker.HeartbeatInterval(wc.HeartbeatInterval),
		worker.WithLogger(a.Logger),
		worker.WithEvents(a.Events),
	}
	if wc.ReaperSchedule != "" {
		sched, err := schedule.Parse(wc.ReaperSchedule)
		if err != nil {
			return nil, fmt.Errorf("worker.reaper_schedule: %w", err)
		}
		opts = append(opts, worker.WithReaper(sched, wc.StaleAfter))
	}
	return worker.NewWorker(a.Store, exec, append(opts, extra...)...), nil
}

// Submit creates a pending run. It stands in for the external submission
// API in local use.
func (a *App) Submit(ctx context.Context, datasetRef, templateRef string, hp map[string]any) (*core.Run, error) {
	if _, err := a.Store.GetDataset(ctx, datasetRef); err != nil {
		return nil, err
	}
	if _, err := a.Store.GetTemplate(ctx, templateRef); err != nil {
		return nil, err
	}
	run := &core.Run{DatasetRef: datasetRef, TemplateRef: templateRef, Hyperparameters: hp}
	if err := a.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	a.Logger.Info("submitted run", "run_id", run.ID, "dataset", datasetRef, "template", templateRef)
	return run, nil
}

// EpochLog reads the epoch log of a run that has produced one.
func (a *App) EpochLog(ctx context.Context, runID string) ([]pipeline.EpochRecord, error) {
	run, err := a.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	path := run.LogPath
	if path == "" {
		dir, err := workarea.NewManager(a.Config.WorkDir, a.Logger).Dir(runID)
		if err != nil {
			return nil, err
		}
		area := &workarea.Area{Dir: dir}
		path = area.EpochLogPath()
	}
	return pipeline.ReadEpochLog(path)
}
