package pipeline

import "math"

// mapeEpsilon keeps the percentage error finite for zero targets.
const mapeEpsilon = 1e-8

// Evaluate computes test metrics on the original target scale.
func Evaluate(pred, target []float64) map[string]float64 {
	n := float64(len(pred))
	var mse, mae, mape float64
	for i, p := range pred {
		d := p - target[i]
		mse += d * d
		mae += math.Abs(d)
		mape += math.Abs((target[i] - p) / (target[i] + mapeEpsilon))
	}
	mse /= n
	mae /= n
	mape = mape / n * 100
	return map[string]float64{
		"test_mse":  mse,
		"test_rmse": math.Sqrt(mse),
		"test_mae":  mae,
		"test_mape": mape,
	}
}
