package pipeline

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
)

// Loss is a per-sample regression loss and its derivative with respect
// to the prediction.
type Loss interface {
	Value(pred, target float64) float64
	Grad(pred, target float64) float64
}

type mseLoss struct{}

func (mseLoss) Value(p, t float64) float64 { d := p - t; return d * d }
func (mseLoss) Grad(p, t float64) float64  { return 2 * (p - t) }

type maeLoss struct{}

func (maeLoss) Value(p, t float64) float64 { return math.Abs(p - t) }
func (maeLoss) Grad(p, t float64) float64 {
	switch {
	case p > t:
		return 1
	case p < t:
		return -1
	}
	return 0
}

// NewLoss returns the loss named by the "loss" hyperparameter.
func NewLoss(name string) (Loss, error) {
	switch name {
	case "", "mse":
		return mseLoss{}, nil
	case "mae", "l1":
		return maeLoss{}, nil
	}
	return nil, core.AsConfigError(errors.WithHint(
		errors.Newf("unsupported loss %q", name),
		"use mse or mae"))
}
