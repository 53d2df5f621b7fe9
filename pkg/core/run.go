package core

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus represents the current state of a training run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusQueued    RunStatus = "queued" // Claimed exactly like pending
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusStopped   RunStatus = "stopped" // Stop requested externally
)

// ClaimableStatuses lists the statuses the claimer picks runs from.
var ClaimableStatuses = []RunStatus{StatusPending, StatusQueued}

// StoppableStatuses lists the statuses a stop request is accepted from.
var StoppableStatuses = []RunStatus{StatusPending, StatusQueued, StatusRunning}

// IsTerminal reports whether no transition out of s exists.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// IsClaimable reports whether a run in status s may be claimed.
func (s RunStatus) IsClaimable() bool {
	return s == StatusPending || s == StatusQueued
}

// IsValid reports whether s is a known status.
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to RunStatus) bool {
	if from.IsTerminal() || !to.IsValid() {
		return false
	}
	switch to {
	case StatusQueued:
		return from == StatusPending
	case StatusRunning:
		return from.IsClaimable()
	case StatusCompleted, StatusFailed:
		return from == StatusRunning
	case StatusStopped:
		return true
	}
	return false
}

// Run is one queued training job: the unit the scheduler operates on.
type Run struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Status          RunStatus `gorm:"index;size:20;default:'pending'"`
	DatasetRef      string    `gorm:"index;size:255;not null"`
	TemplateRef     string    `gorm:"index;size:100;not null"`
	Hyperparameters datatypes.JSONMap

	// Progress, written only by the claiming worker while running.
	CurrentEpoch int    `gorm:"default:0"`
	TotalEpochs  int    `gorm:"default:0"`
	Device       string `gorm:"size:50"`

	// Result, written once by the terminal transition.
	BestMetricName  string `gorm:"size:100"`
	BestMetricValue *float64
	CheckpointPath  string `gorm:"size:512"`
	LogPath         string `gorm:"size:512"`
	MetricsSummary  datatypes.JSONType[map[string]float64]
	ErrorMessage    string `gorm:"type:text"`

	// Claim ownership.
	ClaimedBy   string `gorm:"index;size:255"`
	Version     int    `gorm:"default:0"`
	HeartbeatAt *time.Time

	CreatedAt  time.Time `gorm:"index;autoCreateTime"`
	StartedAt  *time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName pins the table name used by every dialect.
func (Run) TableName() string { return "training_runs" }

// AfterFind turns numeric hyperparameters back into Go numbers.
func (r *Run) AfterFind(*gorm.DB) error {
	NormalizeNumbers(r.Hyperparameters)
	return nil
}

// Metrics returns the test metrics of a completed run.
func (r *Run) Metrics() map[string]float64 {
	return r.MetricsSummary.Data()
}

// Progress is the mutable progress section of a run.
type Progress struct {
	CurrentEpoch int
	TotalEpochs  int
	Device       string // empty leaves the stored device untouched
}

// Result is the single terminal write of a successful run.
type Result struct {
	BestMetricName  string
	BestMetricValue float64
	CheckpointPath  string
	LogPath         string
	EpochsRun       int
	TotalEpochs     int
	Metrics         map[string]float64
}

// Outcome is what executing a run ended in.
type Outcome struct {
	RunID  string
	Status RunStatus
	Err    error // set when Status is failed
}
