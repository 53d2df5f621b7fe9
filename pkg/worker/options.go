package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/durable-training/pkg/events"
	"github.com/jdziat/durable-training/pkg/internal/backoff"
	"github.com/jdziat/durable-training/pkg/schedule"
	"github.com/jdziat/durable-training/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency       int // independent claim loops in this process
	PollInterval      time.Duration
	WorkerID          string
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	Reaper            schedule.Schedule // nil disables the stale-run reaper
	ClaimRetry        backoff.Config
	StorageRetry      backoff.Config
	Logger            *slog.Logger
	Events            *events.Bus
}

// Concurrency sets the number of claim loops.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// PollInterval sets how long an idle loop sleeps before claiming again.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID sets the identity written to claimed_by. Defaults to a UUID.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// HeartbeatInterval sets how often a running run's heartbeat is refreshed.
func HeartbeatInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	})
}

// WithReaper enables failing running runs whose heartbeat is older than
// staleAfter, checked on sched.
func WithReaper(sched schedule.Schedule, staleAfter time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Reaper = sched
		c.StaleAfter = staleAfter
	})
}

// WithClaimRetry sets the backoff used when claiming fails.
func WithClaimRetry(cfg backoff.Config) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.ClaimRetry = cfg
	})
}

// WithStorageRetry sets the backoff used for heartbeats and terminal writes.
func WithStorageRetry(cfg backoff.Config) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = cfg
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithEvents emits RunClaimed on b.
func WithEvents(b *events.Bus) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Events = b
	})
}
