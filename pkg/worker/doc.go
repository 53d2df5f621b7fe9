// Package worker provides the Worker loop that drains the run store.
//
// Each claim loop claims the oldest pending run, executes it to a
// terminal state and immediately claims again; when nothing is claimable
// it sleeps for the poll interval. Any number of workers, in any number
// of processes, may share one store: the claim is the only point of
// coordination.
//
// This package includes:
//   - Worker: claim loops, heartbeat and the stale-run reaper
//   - WorkerOption: configuration options for workers
//
// Most users should import the root package github.com/jdziat/durable-training.
package worker
