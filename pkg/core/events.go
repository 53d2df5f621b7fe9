package core

import "time"

// Event is the interface for all run events.
type Event interface {
	eventMarker()
}

// RunClaimed is emitted when a worker claims a run.
type RunClaimed struct {
	Run       *Run
	WorkerID  string
	Timestamp time.Time
}

func (*RunClaimed) eventMarker() {}

// EpochCompleted is emitted after every finished epoch.
type EpochCompleted struct {
	RunID     string
	Epoch     int
	Total     int
	TrainLoss float64
	ValLoss   float64
	Improved  bool // a new best checkpoint was written
	Timestamp time.Time
}

func (*EpochCompleted) eventMarker() {}

// RunCompleted is emitted when a run completes successfully.
type RunCompleted struct {
	Run       *Run
	Result    Result
	Duration  time.Duration
	Timestamp time.Time
}

func (*RunCompleted) eventMarker() {}

// RunFailed is emitted when a run fails.
type RunFailed struct {
	Run       *Run
	Error     error
	Timestamp time.Time
}

func (*RunFailed) eventMarker() {}

// RunStopped is emitted when a run is observed stopped at a cooperative checkpoint.
type RunStopped struct {
	Run       *Run
	Epoch     int // epochs finished before the stop was observed
	Timestamp time.Time
}

func (*RunStopped) eventMarker() {}
