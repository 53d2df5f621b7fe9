package pipeline

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/workarea"
)

func newArea(t *testing.T, runID string) *workarea.Area {
	t.Helper()
	area, err := workarea.NewManager(t.TempDir(), nil).Prepare(runID)
	require.NoError(t, err)
	return area
}

func newJob(t *testing.T, hp core.Hyperparameters, progress Progress) *Job {
	return &Job{
		RunID:           "run-1",
		Table:           sineTable(t, 200),
		Columns:         sineColumns,
		Hyperparameters: hp,
		Area:            newArea(t, "run-1"),
		Device:          "cpu",
		Progress:        progress,
	}
}

func TestSequenceTrainer_TCNEndToEnd(t *testing.T) {
	progress := &recordingProgress{}
	job := newJob(t, core.Hyperparameters{
		"epochs": 2, "sequence_length": 10, "levels": 1, "batch_size": 32,
	}, progress)

	res, err := NewSequenceTrainer("TCN", BuildTCN).Train(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "val_loss", res.BestMetricName)
	assert.Equal(t, 2, res.EpochsRun)
	assert.Equal(t, 2, res.TotalEpochs)
	assert.Equal(t, job.Area.CheckpointPath(), res.CheckpointPath)
	assert.Equal(t, job.Area.EpochLogPath(), res.LogPath)
	for _, name := range []string{"test_mse", "test_rmse", "test_mae", "test_mape"} {
		v, ok := res.Metrics[name]
		require.True(t, ok, name)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), name)
		assert.GreaterOrEqual(t, v, 0.0, name)
	}

	recs, err := ReadEpochLog(res.LogPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []int{1, 2}, []int{recs[0].Epoch, recs[1].Epoch})
	assert.Equal(t, 0.001, recs[0].LR)

	assert.True(t, progress.started)
	assert.Equal(t, 2, progress.total)
	assert.Equal(t, "cpu", progress.device)
	require.Len(t, progress.epochs, 2)
	assert.True(t, progress.epochs[0].Improved, "the first finite epoch is always a new best")
}

func TestSequenceTrainer_BestCheckpointIsMinimumValLoss(t *testing.T) {
	job := newJob(t, core.Hyperparameters{
		"epochs": 6, "hidden_size": 16, "num_layers": 1, "learning_rate": 0.05,
	}, nil)

	res, err := NewSequenceTrainer("MLP", BuildMLP).Train(context.Background(), job)
	require.NoError(t, err)

	recs, err := ReadEpochLog(res.LogPath)
	require.NoError(t, err)
	require.Len(t, recs, 6)
	best := recs[0]
	for _, r := range recs[1:] {
		if r.ValLoss < best.ValLoss {
			best = r
		}
	}

	cp, err := LoadCheckpoint(res.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, best.ValLoss, cp.ValLoss)
	assert.Equal(t, best.Epoch, cp.Epoch)
	assert.Equal(t, best.ValLoss, res.BestMetricValue)
	assert.Equal(t, "MLP", cp.Model)
	assert.Equal(t, []string{"x"}, cp.Features)
	assert.Equal(t, "y", cp.Target)
}

func TestSequenceTrainer_Reproducible(t *testing.T) {
	hp := core.Hyperparameters{"epochs": 2, "hidden_size": 8, "num_layers": 1, "seed": 7}
	trainer := NewSequenceTrainer("MLP", BuildMLP)

	a, err := trainer.Train(context.Background(), newJob(t, hp, nil))
	require.NoError(t, err)
	b, err := trainer.Train(context.Background(), newJob(t, hp, nil))
	require.NoError(t, err)

	assert.Equal(t, a.BestMetricValue, b.BestMetricValue)
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestSequenceTrainer_NoFeatureColumnsCreatesNoArtifacts(t *testing.T) {
	job := newJob(t, core.Hyperparameters{"epochs": 1}, nil)
	job.Columns = []core.ColumnMeta{{Name: "y", Role: core.RoleTarget}}

	_, err := NewSequenceTrainer("TCN", BuildTCN).Train(context.Background(), job)
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))

	_, statErr := os.Stat(job.Area.EpochLogPath())
	assert.True(t, os.IsNotExist(statErr), "no epoch log")
	_, statErr = os.Stat(job.Area.CheckpointPath())
	assert.True(t, os.IsNotExist(statErr), "no checkpoint")
}

func TestSequenceTrainer_StopsCooperatively(t *testing.T) {
	progress := &recordingProgress{stopAfter: 1}
	job := newJob(t, core.Hyperparameters{"epochs": 5, "hidden_size": 8, "num_layers": 1}, progress)

	res, err := NewSequenceTrainer("MLP", BuildMLP).Train(context.Background(), job)
	assert.ErrorIs(t, err, core.ErrRunStopped)
	assert.Nil(t, res)

	recs, err := ReadEpochLog(job.Area.EpochLogPath())
	require.NoError(t, err)
	assert.Len(t, recs, 1, "the epoch finished before the stop stays logged")
}

func TestSequenceTrainer_InvalidHyperparameters(t *testing.T) {
	for _, hp := range []core.Hyperparameters{
		{"epochs": 0},
		{"batch_size": -1},
		{"learning_rate": 0},
		{"optimizer": "lbfgs"},
		{"loss": "hinge"},
		{"train_ratio": 1.5},
	} {
		_, err := NewSequenceTrainer("MLP", BuildMLP).Train(context.Background(), newJob(t, hp, nil))
		assert.True(t, core.IsConfigError(err), "%v: %v", hp, err)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"MLP", "TCN"}, r.Names())

	tr, err := r.Lookup("TCN")
	require.NoError(t, err)
	assert.NotNil(t, tr)

	_, err = r.Lookup("Transformer")
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
	assert.Contains(t, err.Error(), "unsupported model template: Transformer")

	assert.Error(t, r.Register("../evil", func() Trainer { return nil }))
	assert.Error(t, r.Register("LSTM", nil))
	require.NoError(t, r.Register("LSTM", func() Trainer { return NewSequenceTrainer("LSTM", BuildMLP) }))
	assert.Contains(t, r.Names(), "LSTM")
}
