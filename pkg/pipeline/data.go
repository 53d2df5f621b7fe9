package pipeline

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
)

// Default data hyperparameters.
const (
	DefaultSequenceLength = 10
	DefaultTrainRatio     = 0.7
	DefaultValRatio       = 0.15
)

// DataConfig holds the hyperparameters that shape the data stages.
type DataConfig struct {
	SequenceLength int
	TrainRatio     float64
	ValRatio       float64
}

// DataConfigFrom reads the data hyperparameters with their defaults.
func DataConfigFrom(hp *core.HyperparameterReader) DataConfig {
	return DataConfig{
		SequenceLength: hp.Int("sequence_length", DefaultSequenceLength),
		TrainRatio:     hp.Float("train_ratio", DefaultTrainRatio),
		ValRatio:       hp.Float("val_ratio", DefaultValRatio),
	}
}

// Data is a dataset after column selection, cleaning, splitting,
// normalization and windowing.
type Data struct {
	Frame         *Frame
	TrainRows     int
	ValRows       int
	TestRows      int
	FeatureScaler *Scaler
	TargetScaler  *Scaler
	Train         *Windows
	Val           *Windows
	Test          *Windows
}

// InputSize is the number of numeric features per time step.
func (d *Data) InputSize() int {
	return len(d.Frame.Features)
}

// PrepareData runs the data stages. Scalers are fitted on the training
// block only and applied unchanged to validation and test. Every split
// must yield at least one window.
func PrepareData(tbl *dataset.Table, columns []core.ColumnMeta, cfg DataConfig, logger *slog.Logger) (*Data, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SequenceLength < 1 {
		return nil, core.AsConfigError(errors.Newf("sequence_length must be positive, got %d", cfg.SequenceLength))
	}

	frame, err := SelectColumns(tbl, columns, logger)
	if err != nil {
		return nil, err
	}

	nTrain, nVal, nTest, err := SplitSizes(frame.Rows(), cfg.TrainRatio, cfg.ValRatio)
	if err != nil {
		return nil, err
	}
	logger.Info("data split", "train", nTrain, "val", nVal, "test", nTest)

	xTrain, xVal, xTest := Split(frame.X, nTrain, nVal)
	yTrain, yVal, yTest := Split(frame.Y, nTrain, nVal)

	if nTrain == 0 {
		return nil, core.AsConfigError(errors.WithHint(
			errors.Newf("training split is empty (%d rows)", frame.Rows()),
			"provide more rows or raise train_ratio"))
	}
	fs, err := FitScaler(xTrain)
	if err != nil {
		return nil, err
	}
	ts, err := FitScalerVector(yTrain)
	if err != nil {
		return nil, err
	}

	d := &Data{
		Frame:         frame,
		TrainRows:     nTrain,
		ValRows:       nVal,
		TestRows:      nTest,
		FeatureScaler: fs,
		TargetScaler:  ts,
		Train:         NewWindows(fs.Transform(xTrain), ts.TransformVector(yTrain), cfg.SequenceLength),
		Val:           NewWindows(fs.Transform(xVal), ts.TransformVector(yVal), cfg.SequenceLength),
		Test:          NewWindows(fs.Transform(xTest), ts.TransformVector(yTest), cfg.SequenceLength),
	}

	for _, s := range []struct {
		name string
		rows int
		w    *Windows
	}{
		{"training", nTrain, d.Train},
		{"validation", nVal, d.Val},
		{"test", nTest, d.Test},
	} {
		if s.w.Len() == 0 {
			return nil, core.AsConfigError(errors.WithHint(
				errors.Newf("%s split has %d rows, fewer than sequence_length %d", s.name, s.rows, cfg.SequenceLength),
				"every split must yield at least one window; an empty validation or test split is rejected rather than trained with a zero loss. Lower sequence_length or provide more rows."))
		}
	}
	return d, nil
}
