// Package training schedules and executes ML training runs from a shared
// run store.
//
// This is the main package users should import. It re-exports the public
// types from the internal pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store, _ := training.Open(training.OpenConfig{Driver: "sqlite", DSN: "trainer.db"})
//	store.Migrate(ctx)
//	training.SeedTemplates(ctx, store, training.BuiltinTemplates())
//
//	// Submit a run (normally done by the external API)
//	store.CreateRun(ctx, &training.Run{DatasetRef: "ds-1", TemplateRef: "TCN"})
//
//	// Start a worker
//	exec := training.NewExecutor(store, training.NewWorkAreaManager("runs", nil))
//	worker := training.NewWorker(store, exec, training.Concurrency(2))
//	worker.Start(ctx)
package training

import (
	"github.com/jdziat/durable-training/pkg/catalog"
	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/events"
	"github.com/jdziat/durable-training/pkg/pipeline"
	"github.com/jdziat/durable-training/pkg/runner"
	"github.com/jdziat/durable-training/pkg/schedule"
	"github.com/jdziat/durable-training/pkg/storage"
	"github.com/jdziat/durable-training/pkg/workarea"
	"github.com/jdziat/durable-training/pkg/worker"
)

// Type aliases for the core data model.
type (
	// Run is one queued training job.
	Run = core.Run

	// RunStatus is the lifecycle state of a run.
	RunStatus = core.RunStatus

	// Result is the terminal write of a completed run.
	Result = core.Result

	// Outcome is what executing a run ended in.
	Outcome = core.Outcome

	// Dataset is a tabular dataset with column-role metadata.
	Dataset = core.Dataset

	// DatasetMeta is the column-role metadata stored with a dataset.
	DatasetMeta = core.DatasetMeta

	// ColumnMeta describes one dataset column.
	ColumnMeta = core.ColumnMeta

	// ColumnRole is the semantic role of a dataset column.
	ColumnRole = core.ColumnRole

	// Template is a named model template with default hyperparameters.
	Template = core.Template

	// Storage defines the run store.
	Storage = core.Storage

	// Event is the interface for all run events.
	Event = core.Event

	// RunClaimed is emitted when a worker claims a run.
	RunClaimed = core.RunClaimed

	// EpochCompleted is emitted after every finished epoch.
	EpochCompleted = core.EpochCompleted

	// RunCompleted is emitted when a run completes.
	RunCompleted = core.RunCompleted

	// RunFailed is emitted when a run fails.
	RunFailed = core.RunFailed

	// RunStopped is emitted when a stop is observed.
	RunStopped = core.RunStopped
)

// Status constants.
const (
	StatusPending   = core.StatusPending
	StatusQueued    = core.StatusQueued
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
	StatusStopped   = core.StatusStopped
)

// Column roles.
const (
	RoleFeature   = core.RoleFeature
	RoleTarget    = core.RoleTarget
	RoleTimestamp = core.RoleTimestamp
)

// Error sentinels.
var (
	ErrRunNotFound       = core.ErrRunNotFound
	ErrRunNotOwned       = core.ErrRunNotOwned
	ErrRunStopped        = core.ErrRunStopped
	ErrInvalidTransition = core.ErrInvalidTransition
	ErrDatasetNotFound   = core.ErrDatasetNotFound
	ErrTemplateNotFound  = core.ErrTemplateNotFound
)

// IsConfigError reports whether err is a configuration error.
var IsConfigError = core.IsConfigError

// Storage.
type (
	// GormStorage is the GORM-backed run store.
	GormStorage = storage.GormStorage

	// OpenConfig selects the database for Open.
	OpenConfig = storage.OpenConfig
)

var (
	// Open connects to a run store.
	Open = storage.Open

	// NewGormStorage wraps an open GORM connection.
	NewGormStorage = storage.NewGormStorage
)

// Execution.
type (
	// Executor runs one claimed run to a terminal outcome.
	Executor = runner.Executor

	// Trainer trains one run.
	Trainer = pipeline.Trainer

	// TrainerRegistry maps template names to trainers.
	TrainerRegistry = pipeline.Registry

	// Worker claims and executes runs.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// EventBus fans events out to subscribers.
	EventBus = events.Bus
)

var (
	// NewExecutor creates an executor.
	NewExecutor = runner.NewExecutor

	// NewWorkAreaManager creates per-run directories under a base path.
	NewWorkAreaManager = workarea.NewManager

	// DefaultTrainers returns the registry with the built-in trainers.
	DefaultTrainers = pipeline.DefaultRegistry

	// NewWorker creates a worker.
	NewWorker = worker.NewWorker

	// NewEventBus creates an event bus.
	NewEventBus = events.NewBus

	// Worker options.
	Concurrency       = worker.Concurrency
	PollInterval      = worker.PollInterval
	WorkerID          = worker.WorkerID
	HeartbeatInterval = worker.HeartbeatInterval
	WithReaper        = worker.WithReaper
	WithWorkerEvents  = worker.WithEvents
	WithWorkerLogger  = worker.WithLogger

	// Executor options.
	WithRegistry = runner.WithRegistry
	WithDataDir  = runner.WithDataDir
	WithEvents   = runner.WithEvents
	WithLogger   = runner.WithLogger

	// Schedules for the reaper.
	Every         = schedule.Every
	ParseSchedule = schedule.Parse

	// Template catalog.
	BuiltinTemplates = catalog.Builtin
	LoadTemplates    = catalog.LoadFile
	SeedTemplates    = catalog.Seed
)
