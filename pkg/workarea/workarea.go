// Package workarea allocates the per-run directory that holds a run's
// checkpoint and epoch log.
package workarea

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jdziat/durable-training/pkg/security"
)

// File names inside a run's work area.
const (
	CheckpointFile = "best_model.json"
	EpochLogFile   = "training_log.csv"
)

// Manager creates run directories under a base path.
type Manager struct {
	base   string
	logger *slog.Logger
}

// NewManager returns a manager rooted at base. A nil logger uses slog.Default.
func NewManager(base string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{base: base, logger: logger}
}

// Base returns the directory run areas are created under.
func (m *Manager) Base() string {
	return m.base
}

// Dir returns the directory for runID without creating it.
func (m *Manager) Dir(runID string) (string, error) {
	if err := security.ValidateRunID(runID); err != nil {
		return "", fmt.Errorf("work area for %q: %w", runID, err)
	}
	return filepath.Join(m.base, "run-"+runID), nil
}

// Prepare creates the directory for runID if it does not exist and returns
// it. Calling it again for the same run is a no-op.
func (m *Manager) Prepare(runID string) (*Area, error) {
	dir, err := m.Dir(runID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare work area: %w", err)
	}
	m.logger.Debug("prepared work area", "run_id", runID, "dir", dir)
	return &Area{Dir: dir}, nil
}

// Area is one run's work directory.
type Area struct {
	Dir string
}

// CheckpointPath is where the best checkpoint is kept.
func (a *Area) CheckpointPath() string {
	return filepath.Join(a.Dir, CheckpointFile)
}

// EpochLogPath is where the per-epoch CSV log is appended.
func (a *Area) EpochLogPath() string {
	return filepath.Join(a.Dir, EpochLogFile)
}
