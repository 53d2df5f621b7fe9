package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus // empty matches every status
	Limit  int       // <= 0 uses a default
}

// Storage defines the Run Store: the durable table of training runs.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Submission (normally done by the external API)
	CreateRun(ctx context.Context, run *Run) error

	// Claim selects the oldest pending or queued run, marks it running for
	// workerID and returns it. Returns nil, nil when nothing is obtainable.
	Claim(ctx context.Context, workerID string) (*Run, error)

	// Execution-time writes, valid only while the run is running and owned by workerID.
	ReportProgress(ctx context.Context, runID string, workerID string, p Progress) error
	Heartbeat(ctx context.Context, runID string, workerID string) error
	Complete(ctx context.Context, runID string, workerID string, result Result) error
	Fail(ctx context.Context, runID string, workerID string, errMsg string) error

	// External stop request.
	Stop(ctx context.Context, runID string) error

	// Recovery
	FailStaleRuns(ctx context.Context, staleAfter time.Duration) (int64, error)

	// Queries
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	DatasetSource
	TemplateSource
}

// DatasetSource resolves dataset references.
type DatasetSource interface {
	GetDataset(ctx context.Context, ref string) (*Dataset, error)
}

// TemplateSource resolves template references.
type TemplateSource interface {
	GetTemplate(ctx context.Context, ref string) (*Template, error)
}
