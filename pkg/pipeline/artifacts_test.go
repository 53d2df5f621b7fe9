package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_log.csv")
	log, err := CreateEpochLog(path)
	require.NoError(t, err)
	assert.Equal(t, path, log.Path())

	require.NoError(t, log.Append(EpochRecord{Epoch: 1, TrainLoss: 0.5, ValLoss: 0.75, LR: 0.001}))
	require.NoError(t, log.Append(EpochRecord{Epoch: 2, TrainLoss: 0.25, ValLoss: 0.5, LR: 0.001}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "epoch,train_loss,val_loss,lr\n1,0.5,0.75,0.001\n2,0.25,0.5,0.001\n", string(raw))

	recs, err := ReadEpochLog(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, EpochRecord{Epoch: 2, TrainLoss: 0.25, ValLoss: 0.5, LR: 0.001}, recs[1])
}

func TestEpochLog_CreateTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_log.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	_, err := CreateEpochLog(path)
	require.NoError(t, err)
	recs, err := ReadEpochLog(path)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReadEpochLog_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	require.NoError(t, os.WriteFile(path, []byte("epoch,train_loss,val_loss,lr\n1,x,0.5,0.1\n"), 0o644))
	_, err := ReadEpochLog(path)
	assert.ErrorContains(t, err, "line 2")
}

func TestCheckpoint_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "best_model.json")

	require.NoError(t, SaveCheckpoint(path, &Checkpoint{Model: "TCN", Epoch: 1, ValLoss: 0.9,
		Params: map[string][]float64{"w": {1, 2}}}))
	require.NoError(t, SaveCheckpoint(path, &Checkpoint{Model: "TCN", Epoch: 3, ValLoss: 0.4,
		Params: map[string][]float64{"w": {3, 4}}, FeatureScaler: &Scaler{Mean: []float64{1}, Scale: []float64{2}}}))

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cp.Epoch)
	assert.Equal(t, 0.4, cp.ValLoss)
	assert.Equal(t, []float64{3, 4}, cp.Params["w"])
	assert.Equal(t, []float64{2}, cp.FeatureScaler.Scale)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSaveCheckpoint_MissingDir(t *testing.T) {
	err := SaveCheckpoint(filepath.Join(t.TempDir(), "gone", "best_model.json"), &Checkpoint{})
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	m := Evaluate([]float64{1, 3}, []float64{2, 2})
	assert.Equal(t, 1.0, m["test_mse"])
	assert.Equal(t, 1.0, m["test_rmse"])
	assert.Equal(t, 1.0, m["test_mae"])
	assert.InDelta(t, 50, m["test_mape"], 1e-6)
	assert.Len(t, m, 4)
}

func TestEvaluate_ZeroTargetStaysFinite(t *testing.T) {
	m := Evaluate([]float64{0.5}, []float64{0})
	assert.False(t, math.IsInf(m["test_mape"], 0))
	assert.False(t, math.IsNaN(m["test_mape"]))
}
