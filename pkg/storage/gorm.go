package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/security"
)

// maxClaimCandidates bounds how many rows a claim attempt inspects on
// dialects without SKIP LOCKED before reporting nothing obtainable.
const maxClaimCandidates = 8

// defaultListLimit is used by ListRuns when the filter carries no limit.
const defaultListLimit = 100

// StaleHeartbeatMessage is the error recorded on runs failed by FailStaleRuns.
const StaleHeartbeatMessage = "worker lost heartbeat"

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed run store.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (s *GormStorage) dialect() string {
	if s.db == nil || s.db.Dialector == nil {
		return ""
	}
	return s.db.Dialector.Name()
}

// supportsSkipLocked reports whether row locks with SKIP LOCKED are available.
func (s *GormStorage) supportsSkipLocked() bool {
	switch s.dialect() {
	case "postgres", "mysql":
		return true
	}
	return false
}

// Migrate creates the run, dataset and template tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Run{}, &core.Dataset{}, &core.Template{})
}

// ──────────────────────────────────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────────────────────────────────

// CreateRun inserts a new run. Runs may only be created pending or queued.
func (s *GormStorage) CreateRun(ctx context.Context, run *core.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if err := security.ValidateRunID(run.ID); err != nil {
		return err
	}
	if run.Status == "" {
		run.Status = core.StatusPending
	}
	if !run.Status.IsClaimable() {
		return fmt.Errorf("%w: cannot create run in status %q", core.ErrInvalidTransition, run.Status)
	}
	if run.Hyperparameters == nil {
		run.Hyperparameters = datatypes.JSONMap{}
	}
	return s.db.WithContext(ctx).Create(run).Error
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────────────────────────────────

// Claim takes the oldest pending or queued run and marks it running for
// workerID. It returns nil, nil when no run is obtainable.
//
// On PostgreSQL and MySQL the candidate row is locked with
// FOR UPDATE SKIP LOCKED so concurrent claimers never wait on each other.
// Every dialect then moves the row with a compare-and-set on version and
// status, so a run is handed to at most one worker.
func (s *GormStorage) Claim(ctx context.Context, workerID string) (*core.Run, error) {
	var claimed *core.Run

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("status IN ?", core.ClaimableStatuses).
			Order("created_at ASC").
			Order("id ASC")
		if s.supportsSkipLocked() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).Limit(1)
		} else {
			q = q.Limit(maxClaimCandidates)
		}

		var candidates []core.Run
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range candidates {
			run := &candidates[i]
			result := tx.
				Model(&core.Run{}).
				Where("id = ? AND version = ?", run.ID, run.Version).
				Where("status IN ?", core.ClaimableStatuses).
				Updates(map[string]any{
					"status":       core.StatusRunning,
					"claimed_by":   workerID,
					"version":      run.Version + 1,
					"started_at":   now,
					"heartbeat_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Taken or stopped between select and update.
				continue
			}

			run.Status = core.StatusRunning
			run.ClaimedBy = workerID
			run.Version++
			run.StartedAt = &now
			run.HeartbeatAt = &now
			claimed = run
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Execution-time writes
// ──────────────────────────────────────────────────────────────────────────────

// ownedUpdate applies updates only while runID is running and claimed by workerID.
// A run never returns to a claimable status, so claimed_by identifies the
// claim for as long as the run is running.
func (s *GormStorage) ownedUpdate(ctx context.Context, runID, workerID string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Where("id = ? AND claimed_by = ? AND status = ?", runID, workerID, core.StatusRunning).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.explainRejected(ctx, runID)
	}
	return nil
}

// explainRejected turns a zero-row owned update into the matching sentinel.
func (s *GormStorage) explainRejected(ctx context.Context, runID string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == core.StatusStopped {
		return core.ErrRunStopped
	}
	return core.ErrRunNotOwned
}

// ReportProgress records the current epoch, total epochs and device.
// The heartbeat is refreshed with every progress write.
func (s *GormStorage) ReportProgress(ctx context.Context, runID string, workerID string, p core.Progress) error {
	updates := map[string]any{
		"current_epoch": p.CurrentEpoch,
		"total_epochs":  p.TotalEpochs,
		"heartbeat_at":  time.Now(),
	}
	if p.Device != "" {
		updates["device"] = p.Device
	}
	return s.ownedUpdate(ctx, runID, workerID, updates)
}

// Heartbeat refreshes the liveness timestamp of a running run.
func (s *GormStorage) Heartbeat(ctx context.Context, runID string, workerID string) error {
	return s.ownedUpdate(ctx, runID, workerID, map[string]any{
		"heartbeat_at": time.Now(),
	})
}

// Complete marks a run completed and records its result in one write.
func (s *GormStorage) Complete(ctx context.Context, runID string, workerID string, result core.Result) error {
	now := time.Now()
	metrics := make(map[string]float64, len(result.Metrics))
	for k, v := range result.Metrics {
		metrics[k] = v
	}
	best := result.BestMetricValue

	return s.ownedUpdate(ctx, runID, workerID, map[string]any{
		"status":            core.StatusCompleted,
		"current_epoch":     result.EpochsRun,
		"total_epochs":      result.TotalEpochs,
		"best_metric_name":  result.BestMetricName,
		"best_metric_value": &best,
		"checkpoint_path":   result.CheckpointPath,
		"log_path":          result.LogPath,
		"metrics_summary":   datatypes.NewJSONType(metrics),
		"error_message":     "",
		"finished_at":       now,
	})
}

// Fail marks a run failed. Error messages are sanitized before storage.
func (s *GormStorage) Fail(ctx context.Context, runID string, workerID string, errMsg string) error {
	return s.ownedUpdate(ctx, runID, workerID, map[string]any{
		"status":        core.StatusFailed,
		"error_message": security.SanitizeErrorMessage(errMsg),
		"finished_at":   time.Now(),
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Stop and recovery
// ──────────────────────────────────────────────────────────────────────────────

// Stop moves a pending, queued or running run to stopped.
// A run stopped before it was claimed also gets a start time, so finished
// runs always carry both timestamps.
func (s *GormStorage) Stop(ctx context.Context, runID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Where("id = ? AND status IN ?", runID, core.StoppableStatuses).
		Updates(map[string]any{
			"status":      core.StatusStopped,
			"finished_at": now,
			"started_at":  gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: run %s is %s", core.ErrInvalidTransition, runID, run.Status)
	}
	return nil
}

// FailStaleRuns fails running runs whose heartbeat is older than staleAfter.
// Runs are failed rather than re-queued: a half-trained run is not resumable.
func (s *GormStorage) FailStaleRuns(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := time.Now()
	cutoff := now.Add(-staleAfter)
	result := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Where("status = ?", core.StatusRunning).
		Where("(heartbeat_at < ? OR (heartbeat_at IS NULL AND started_at < ?))", cutoff, cutoff).
		Updates(map[string]any{
			"status":        core.StatusFailed,
			"error_message": StaleHeartbeatMessage,
			"finished_at":   now,
		})
	return result.RowsAffected, result.Error
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetRun retrieves a run by ID.
func (s *GormStorage) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run core.Run
	err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *GormStorage) ListRuns(ctx context.Context, filter core.RunFilter) ([]*core.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var runs []*core.Run
	err := q.Find(&runs).Error
	return runs, err
}

// ──────────────────────────────────────────────────────────────────────────────
// Datasets and templates
// ──────────────────────────────────────────────────────────────────────────────

// GetDataset retrieves dataset metadata by ID.
func (s *GormStorage) GetDataset(ctx context.Context, ref string) (*core.Dataset, error) {
	var ds core.Dataset
	err := s.db.WithContext(ctx).First(&ds, "id = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrDatasetNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

// SaveDataset inserts or replaces a dataset record.
func (s *GormStorage) SaveDataset(ctx context.Context, ds *core.Dataset) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Format == "" {
		ds.Format = "csv"
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(ds).Error
}

// GetTemplate retrieves a model template by name.
func (s *GormStorage) GetTemplate(ctx context.Context, ref string) (*core.Template, error) {
	var tpl core.Template
	err := s.db.WithContext(ctx).First(&tpl, "name = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrTemplateNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// SaveTemplate inserts or replaces a model template.
func (s *GormStorage) SaveTemplate(ctx context.Context, tpl *core.Template) error {
	if err := security.ValidateTemplateName(tpl.Name); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(tpl).Error
}

// ListTemplates returns every template ordered by name.
func (s *GormStorage) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	var tpls []*core.Template
	err := s.db.WithContext(ctx).Order("name ASC").Find(&tpls).Error
	return tpls, err
}

var _ core.Storage = (*GormStorage)(nil)
