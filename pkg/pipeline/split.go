package pipeline

import (
	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
)

// SplitSizes returns the row counts of the train, validation and test
// blocks. Train and validation sizes truncate toward zero; test takes the
// remainder, so the three always cover n.
func SplitSizes(n int, trainRatio, valRatio float64) (train, val, test int, err error) {
	if trainRatio <= 0 || trainRatio >= 1 {
		return 0, 0, 0, core.AsConfigError(errors.Newf("train_ratio must be in (0, 1), got %g", trainRatio))
	}
	if valRatio < 0 || trainRatio+valRatio > 1 {
		return 0, 0, 0, core.AsConfigError(errors.Newf("val_ratio must be in [0, 1-train_ratio], got %g", valRatio))
	}
	train = int(float64(n) * trainRatio)
	val = int(float64(n) * valRatio)
	test = n - train - val
	return train, val, test, nil
}

// Split cuts rows into contiguous, order-preserving blocks of the given sizes.
func Split[T any](rows []T, train, val int) (trainRows, valRows, testRows []T) {
	return rows[:train], rows[train : train+val], rows[train+val:]
}
