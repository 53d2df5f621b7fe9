package pipeline

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Scaler standardizes columns to zero mean and unit variance.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population standard deviation.
// A constant column gets scale 1 so it maps to zero instead of NaN.
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit scaler on zero rows")
	}
	cols := len(rows[0])
	s := &Scaler{Mean: make([]float64, cols), Scale: make([]float64, cols)}
	n := float64(len(rows))
	for _, r := range rows {
		for c, v := range r {
			s.Mean[c] += v
		}
	}
	for c := range s.Mean {
		s.Mean[c] /= n
	}
	for _, r := range rows {
		for c, v := range r {
			d := v - s.Mean[c]
			s.Scale[c] += d * d
		}
	}
	for c := range s.Scale {
		std := math.Sqrt(s.Scale[c] / n)
		if std == 0 {
			std = 1
		}
		s.Scale[c] = std
	}
	return s, nil
}

// FitScalerVector fits a single-column scaler on values.
func FitScalerVector(values []float64) (*Scaler, error) {
	return FitScaler(asColumn(values))
}

// Transform returns standardized copies of rows.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		o := make([]float64, len(r))
		for c, v := range r {
			o[c] = (v - s.Mean[c]) / s.Scale[c]
		}
		out[i] = o
	}
	return out
}

// TransformVector standardizes a single-column vector.
func (s *Scaler) TransformVector(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean[0]) / s.Scale[0]
	}
	return out
}

// InverseVector maps standardized single-column values back to the original scale.
func (s *Scaler) InverseVector(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v*s.Scale[0] + s.Mean[0]
	}
	return out
}

func asColumn(values []float64) [][]float64 {
	rows := make([][]float64, len(values))
	for i, v := range values {
		rows[i] = []float64{v}
	}
	return rows
}
