package pipeline

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/durable-training/pkg/core"
)

func TestSplitSizes_SeventyFifteenFifteen(t *testing.T) {
	train, val, test, err := SplitSizes(100, 0.7, 0.15)
	require.NoError(t, err)
	assert.Equal(t, 70, train)
	assert.Equal(t, 15, val)
	assert.Equal(t, 15, test)
}

func TestSplit_OrderPreservingAndCovering(t *testing.T) {
	rows := make([]int, 100)
	for i := range rows {
		rows[i] = i
	}
	train, val, _, err := SplitSizes(len(rows), 0.7, 0.15)
	require.NoError(t, err)

	a, b, c := Split(rows, train, val)
	joined := append(append(append([]int{}, a...), b...), c...)
	assert.Equal(t, rows, joined, "blocks are contiguous, non-overlapping and cover every row")
	assert.Equal(t, 0, a[0])
	assert.Equal(t, 70, b[0])
	assert.Equal(t, 85, c[0])
}

func TestSplitSizes_Truncates(t *testing.T) {
	train, val, test, err := SplitSizes(200, 0.7, 0.15)
	require.NoError(t, err)
	assert.Equal(t, []int{140, 30, 30}, []int{train, val, test})

	train, val, test, err = SplitSizes(7, 0.5, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 3}, []int{train, val, test})
}

func TestSplitSizes_RejectsBadRatios(t *testing.T) {
	for _, r := range [][2]float64{{0, 0.1}, {1, 0}, {0.7, -0.1}, {0.7, 0.4}} {
		_, _, _, err := SplitSizes(100, r[0], r[1])
		assert.True(t, core.IsConfigError(err), "ratios %v", r)
	}
}

func TestFitScaler_PopulationStd(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale, "constant column gets scale 1")

	out := s.Transform([][]float64{{1, 5}, {3, 5}, {5, 7}})
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}, {3, 2}}, out)

	_, err = FitScaler(nil)
	assert.Error(t, err)
}

func TestScaler_VectorRoundTrip(t *testing.T) {
	s, err := FitScalerVector([]float64{10, 20, 30})
	require.NoError(t, err)
	z := s.TransformVector([]float64{10, 20, 30})
	assert.InDelta(t, 0, z[1], 1e-12)
	back := s.InverseVector(z)
	for i, v := range []float64{10, 20, 30} {
		assert.InDelta(t, v, back[i], 1e-9)
	}
}

func TestWindows_CountsAndTargets(t *testing.T) {
	x := make([][]float64, 14)
	y := make([]float64, 14)
	for i := range x {
		x[i] = []float64{float64(i)}
		y[i] = float64(100 + i)
	}
	w := NewWindows(x, y, 10)
	require.Equal(t, 5, w.Len())

	in, target := w.At(0)
	assert.Len(t, in, 10)
	assert.Equal(t, 0.0, in[0][0])
	assert.Equal(t, 9.0, in[9][0])
	assert.Equal(t, 109.0, target, "target comes from the last row of the window")

	_, last := w.At(4)
	assert.Equal(t, 113.0, last)
	assert.Equal(t, []float64{109, 110, 111, 112, 113}, w.Targets())
}

func TestWindows_FewerRowsThanSequence(t *testing.T) {
	x := [][]float64{{1}, {2}}
	assert.Equal(t, 0, NewWindows(x, []float64{1, 2}, 3).Len())
	assert.Equal(t, 1, NewWindows(x, []float64{1, 2}, 2).Len())
	assert.Equal(t, 0, NewWindows(nil, nil, 10).Len())
}

func TestPrepareData_TwoHundredRows(t *testing.T) {
	data, err := PrepareData(sineTable(t, 200), sineColumns, DataConfig{
		SequenceLength: 10, TrainRatio: 0.7, ValRatio: 0.15,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 140, data.TrainRows)
	assert.Equal(t, 30, data.ValRows)
	assert.Equal(t, 30, data.TestRows)
	assert.Equal(t, 131, data.Train.Len())
	assert.Equal(t, 21, data.Val.Len())
	assert.Equal(t, 21, data.Test.Len())
	assert.Equal(t, 1, data.InputSize())
}

func TestPrepareData_ScalerFitOnTrainOnly(t *testing.T) {
	data, err := PrepareData(sineTable(t, 200), sineColumns, DataConfig{
		SequenceLength: 10, TrainRatio: 0.7, ValRatio: 0.15,
	}, nil)
	require.NoError(t, err)

	var mean float64
	for _, row := range data.Frame.X[:140] {
		mean += row[0]
	}
	mean /= 140
	assert.InDelta(t, mean, data.FeatureScaler.Mean[0], 1e-12)
}

func TestPrepareData_TooFewRowsForWindows(t *testing.T) {
	_, err := PrepareData(sineTable(t, 40), sineColumns, DataConfig{
		SequenceLength: 10, TrainRatio: 0.7, ValRatio: 0.15,
	}, nil)
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
	assert.Contains(t, err.Error(), "validation split has 6 rows")
	hints := errors.FlattenHints(err)
	assert.Contains(t, hints, "rejected rather than trained with a zero loss")
	assert.Contains(t, hints, "Lower sequence_length")
}

func TestPrepareData_BadSequenceLength(t *testing.T) {
	_, err := PrepareData(sineTable(t, 50), sineColumns, DataConfig{SequenceLength: 0, TrainRatio: 0.7, ValRatio: 0.15}, nil)
	assert.True(t, core.IsConfigError(err))
}
