package pipeline

import (
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/dataset"
)

// Frame is the numeric feature matrix and target vector of a dataset.
type Frame struct {
	Features []string    // numeric feature columns, declaration order
	Target   string      // first declared target column
	Dropped  []string    // non-numeric feature columns that were skipped
	X        [][]float64 // rows x features
	Y        []float64
}

// Rows returns the number of rows in the frame.
func (f *Frame) Rows() int {
	return len(f.Y)
}

// SelectColumns resolves feature and target columns from the dataset's
// column metadata. Columns declared in the metadata but absent from the
// file are ignored. Non-numeric features are dropped with a warning; a
// non-numeric target is a configuration error.
func SelectColumns(tbl *dataset.Table, columns []core.ColumnMeta, logger *slog.Logger) (*Frame, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var features, targets []string
	for _, c := range columns {
		if !tbl.Has(c.Name) {
			continue
		}
		switch c.Role {
		case core.RoleFeature:
			features = append(features, c.Name)
		case core.RoleTarget:
			targets = append(targets, c.Name)
		}
	}

	if len(features) == 0 {
		return nil, core.AsConfigError(errors.WithHint(
			errors.Newf("no feature columns found in dataset (available roles: %s)", availableRoles(columns)),
			"set at least one column role to 'feature' in the dataset schema"))
	}
	if len(targets) == 0 {
		return nil, core.AsConfigError(errors.WithHint(
			errors.Newf("no target columns found in dataset (available roles: %s)", availableRoles(columns)),
			"set at least one column role to 'target' in the dataset schema"))
	}

	frame := &Frame{Target: targets[0]}
	var featureCols [][]float64
	for _, name := range features {
		values, ok := tbl.Float(name)
		if !ok {
			logger.Warn("skipping non-numeric feature column", "column", name)
			frame.Dropped = append(frame.Dropped, name)
			continue
		}
		frame.Features = append(frame.Features, name)
		featureCols = append(featureCols, values)
	}
	if len(frame.Features) == 0 {
		return nil, core.NewConfigError("no numeric feature columns found; all feature columns must be numeric")
	}

	y, ok := tbl.Float(frame.Target)
	if !ok {
		return nil, core.NewConfigError("target column '" + frame.Target + "' must be numeric")
	}

	for i, col := range featureCols {
		if !FillMissing(col) {
			return nil, core.NewConfigError("feature column '" + frame.Features[i] + "' has no values")
		}
	}
	if !FillMissing(y) {
		return nil, core.NewConfigError("target column '" + frame.Target + "' has no values")
	}

	frame.Y = y
	frame.X = make([][]float64, len(y))
	for r := range frame.X {
		row := make([]float64, len(featureCols))
		for c, col := range featureCols {
			row[c] = col[r]
		}
		frame.X[r] = row
	}
	return frame, nil
}

func availableRoles(columns []core.ColumnMeta) string {
	var roles []string
	for _, c := range columns {
		role := string(c.Role)
		if role == "" {
			role = string(core.RoleFeature)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	slices.Sort(roles)
	if len(roles) == 0 {
		return "none"
	}
	return strings.Join(roles, ", ")
}

// FillMissing replaces NaN values in place: forward fill, then back fill
// for a leading gap. It reports false when every value is missing.
func FillMissing(values []float64) bool {
	last := math.NaN()
	first := -1
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
			continue
		}
		if first < 0 {
			first = i
		}
		last = v
	}
	if first < 0 {
		return len(values) == 0
	}
	for i := 0; i < first; i++ {
		values[i] = values[first]
	}
	return true
}
