package pipeline

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
	"github.com/jdziat/durable-training/pkg/workarea"
)

// Default training hyperparameters.
const (
	DefaultEpochs       = 50
	DefaultBatchSize    = 64
	DefaultLearningRate = 0.001
	DefaultSeed         = 42
)

// BestMetricName is the metric the best checkpoint is selected by.
const BestMetricName = "val_loss"

// Progress receives the progress writes of a run. Implementations return
// an error wrapping core.ErrRunStopped once the run has been stopped.
type Progress interface {
	// Start records the total epoch count and compute device before the loop.
	Start(ctx context.Context, totalEpochs int, device string) error
	// Epoch records a finished epoch.
	Epoch(ctx context.Context, s EpochStats) error
	// CheckStopped is the cooperative stop check at the top of an epoch.
	CheckStopped(ctx context.Context) error
}

// EpochStats describes one finished epoch.
type EpochStats struct {
	Epoch     int
	Total     int
	TrainLoss float64
	ValLoss   float64
	LR        float64
	Improved  bool
}

// Job is everything a trainer needs for one run. It is never shared
// between runs.
type Job struct {
	RunID           string
	Table           *dataset.Table
	Columns         []core.ColumnMeta
	Hyperparameters core.Hyperparameters
	Area            *workarea.Area
	Device          string
	Progress        Progress
	Logger          *slog.Logger
}

// Trainer executes one run to a result.
type Trainer interface {
	Train(ctx context.Context, job *Job) (*core.Result, error)
}

// SequenceTrainer trains a window-to-value regression network built by a
// ModelBuilder.
type SequenceTrainer struct {
	name  string
	build ModelBuilder
}

// NewSequenceTrainer returns a trainer for the networks build produces.
func NewSequenceTrainer(name string, build ModelBuilder) *SequenceTrainer {
	return &SequenceTrainer{name: name, build: build}
}

type trainConfig struct {
	data      DataConfig
	epochs    int
	batchSize int
	lr        float64
	momentum  float64
	optimizer string
	loss      string
	seed      int
}

func readTrainConfig(hp *core.HyperparameterReader) (trainConfig, error) {
	cfg := trainConfig{
		data:      DataConfigFrom(hp),
		epochs:    hp.Int("epochs", DefaultEpochs),
		batchSize: hp.Int("batch_size", DefaultBatchSize),
		lr:        hp.Float("learning_rate", DefaultLearningRate),
		momentum:  hp.Float("momentum", 0),
		optimizer: hp.String("optimizer", "adam"),
		loss:      hp.String("loss", "mse"),
		seed:      hp.Int("seed", DefaultSeed),
	}
	if err := hp.Err(); err != nil {
		return cfg, err
	}
	if cfg.epochs < 1 {
		return cfg, core.AsConfigError(errors.Newf("epochs must be positive, got %d", cfg.epochs))
	}
	if cfg.batchSize < 1 {
		return cfg, core.AsConfigError(errors.Newf("batch_size must be positive, got %d", cfg.batchSize))
	}
	return cfg, nil
}

// Train runs the data stages, the epoch loop and the final evaluation.
// No artifact is created before the inputs have been validated.
func (t *SequenceTrainer) Train(ctx context.Context, job *Job) (*core.Result, error) {
	logger := job.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("model", t.name)
	progress := job.Progress
	if progress == nil {
		progress = nopProgress{}
	}

	hp := job.Hyperparameters.Reader()
	cfg, err := readTrainConfig(hp)
	if err != nil {
		return nil, err
	}

	data, err := PrepareData(job.Table, job.Columns, cfg.data, logger)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.seed), uint64(cfg.seed)))
	model, err := t.build(hp, data.InputSize(), cfg.data.SequenceLength, rng)
	if err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(cfg.optimizer, cfg.lr, cfg.momentum)
	if err != nil {
		return nil, err
	}
	loss, err := NewLoss(cfg.loss)
	if err != nil {
		return nil, err
	}

	epochLog, err := CreateEpochLog(job.Area.EpochLogPath())
	if err != nil {
		return nil, err
	}
	if err := progress.Start(ctx, cfg.epochs, job.Device); err != nil {
		return nil, err
	}
	logger.Info("training started",
		"epochs", cfg.epochs,
		"device", job.Device,
		"features", data.Frame.Features,
		"train_windows", data.Train.Len(),
		"val_windows", data.Val.Len(),
		"test_windows", data.Test.Len(),
	)

	checkpointPath := job.Area.CheckpointPath()
	best := math.Inf(1)
	bestEpoch := 0
	order := make([]int, data.Train.Len())
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.epochs; epoch++ {
		if epoch > 1 {
			if err := progress.CheckStopped(ctx); err != nil {
				return nil, err
			}
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		trainLoss := trainEpoch(model, opt, loss, data.Train, order, cfg.batchSize)
		valLoss := evaluateLoss(model, loss, data.Val, cfg.batchSize)
		lr := opt.LearningRate()

		if err := epochLog.Append(EpochRecord{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss, LR: lr}); err != nil {
			return nil, err
		}

		improved := valLoss < best
		if improved {
			best = valLoss
			bestEpoch = epoch
			if err := SaveCheckpoint(checkpointPath, &Checkpoint{
				Model:         t.name,
				Epoch:         epoch,
				ValLoss:       valLoss,
				Params:        model.Snapshot(),
				Optimizer:     opt.State(),
				Features:      data.Frame.Features,
				Target:        data.Frame.Target,
				FeatureScaler: data.FeatureScaler,
				TargetScaler:  data.TargetScaler,
			}); err != nil {
				return nil, err
			}
		}

		if err := progress.Epoch(ctx, EpochStats{
			Epoch: epoch, Total: cfg.epochs,
			TrainLoss: trainLoss, ValLoss: valLoss, LR: lr,
			Improved: improved,
		}); err != nil {
			return nil, err
		}

		level := slog.LevelDebug
		if epoch%10 == 0 {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "epoch finished",
			"epoch", epoch, "total", cfg.epochs,
			"train_loss", trainLoss, "val_loss", valLoss, "lr", lr)
	}

	if bestEpoch == 0 {
		return nil, errors.WithHint(
			errors.New("validation loss never became finite; training diverged"),
			"lower learning_rate")
	}

	cp, err := LoadCheckpoint(checkpointPath)
	if err != nil {
		return nil, err
	}
	if err := model.Restore(cp.Params); err != nil {
		return nil, err
	}

	pred := make([]float64, data.Test.Len())
	for i := range pred {
		x, _ := data.Test.At(i)
		pred[i] = model.Predict(x)
	}
	metrics := Evaluate(
		data.TargetScaler.InverseVector(pred),
		data.TargetScaler.InverseVector(data.Test.Targets()),
	)
	for name, v := range metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Newf("test metric %s is not finite", name)
		}
	}
	logger.Info("training finished", "best_epoch", bestEpoch, "best_val_loss", best, "metrics", metrics)

	return &core.Result{
		BestMetricName:  BestMetricName,
		BestMetricValue: best,
		CheckpointPath:  checkpointPath,
		LogPath:         epochLog.Path(),
		EpochsRun:       cfg.epochs,
		TotalEpochs:     cfg.epochs,
		Metrics:         metrics,
	}, nil
}

// trainEpoch makes one pass over the training windows in the given order
// and returns the mean of the batch losses.
func trainEpoch(model *Network, opt Optimizer, loss Loss, w *Windows, order []int, batchSize int) float64 {
	var total float64
	var batches int
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		n := float64(end - start)
		model.zeroGrad()
		var sum float64
		for _, idx := range order[start:end] {
			x, y := w.At(idx)
			sum += model.accumulate(x, y, loss, 1/n)
		}
		opt.Step(model.Params())
		total += sum / n
		batches++
	}
	if batches == 0 {
		return 0
	}
	return total / float64(batches)
}

// evaluateLoss returns the mean batch loss over w without updating the model.
func evaluateLoss(model *Network, loss Loss, w *Windows, batchSize int) float64 {
	var total float64
	var batches int
	for start := 0; start < w.Len(); start += batchSize {
		end := min(start+batchSize, w.Len())
		var sum float64
		for i := start; i < end; i++ {
			x, y := w.At(i)
			sum += loss.Value(model.Predict(x), y)
		}
		total += sum / float64(end-start)
		batches++
	}
	if batches == 0 {
		return 0
	}
	return total / float64(batches)
}

type nopProgress struct{}

func (nopProgress) Start(context.Context, int, string) error { return nil }
func (nopProgress) Epoch(context.Context, EpochStats) error  { return nil }
func (nopProgress) CheckStopped(context.Context) error       { return nil }
