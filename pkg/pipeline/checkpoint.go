package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// Checkpoint is the persisted best model: parameters, optimizer state,
// the epoch it was taken at and its validation loss.
type Checkpoint struct {
	Model         string               `json:"model"`
	Epoch         int                  `json:"epoch"`
	ValLoss       float64              `json:"val_loss"`
	Params        map[string][]float64 `json:"params"`
	Optimizer     OptimizerState       `json:"optimizer"`
	Features      []string             `json:"features"`
	Target        string               `json:"target"`
	FeatureScaler *Scaler              `json:"feature_scaler,omitempty"`
	TargetScaler  *Scaler              `json:"target_scaler,omitempty"`
}

// SaveCheckpoint writes cp to path atomically: a reader sees either the
// previous checkpoint or the new one, never a partial file.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	return writeFileAtomic(path, data)
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read checkpoint")
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, "decode checkpoint")
	}
	return &cp, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create checkpoint temp file")
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, "sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, "close checkpoint")
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return errors.Wrap(err, "replace checkpoint")
	}
	return nil
}
