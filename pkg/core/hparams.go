package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Hyperparameters maps a parameter name to a scalar value.
type Hyperparameters map[string]any

// MergeHyperparameters returns template defaults overridden by run-specific
// values. Run values win on key collision. Neither input is modified.
func MergeHyperparameters(defaults, overrides map[string]any) Hyperparameters {
	merged := make(Hyperparameters, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// NormalizeNumbers replaces the json.Number values a JSON column decodes
// to with int64 for whole numbers and float64 otherwise.
func NormalizeNumbers(m map[string]any) {
	for k, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			m[k] = i
		} else if f, err := n.Float64(); err == nil {
			m[k] = f
		}
	}
}

// Reader returns a typed accessor over hp that records the first conversion error.
func (hp Hyperparameters) Reader() *HyperparameterReader {
	return &HyperparameterReader{hp: hp}
}

// HyperparameterReader reads typed values with defaults. Check Err once
// after all reads.
type HyperparameterReader struct {
	hp  Hyperparameters
	err error
}

// Err returns the first conversion error, if any.
func (r *HyperparameterReader) Err() error {
	return r.err
}

func (r *HyperparameterReader) fail(key string, v any, want string) {
	if r.err == nil {
		r.err = NewConfigError(fmt.Sprintf("hyperparameter %q must be %s, got %v", key, want, v))
	}
}

// Float returns key as a float64, or def when unset.
func (r *HyperparameterReader) Float(key string, def float64) float64 {
	v, ok := r.hp[key]
	if !ok || v == nil {
		return def
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		r.fail(key, v, "a finite number")
		return def
	}
	return f
}

// Int returns key as an int, or def when unset. Whole-valued floats are accepted.
func (r *HyperparameterReader) Int(key string, def int) int {
	v, ok := r.hp[key]
	if !ok || v == nil {
		return def
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		r.fail(key, v, "an integer")
		return def
	}
	return int(f)
}

// String returns key as a string, or def when unset.
func (r *HyperparameterReader) String(key string, def string) string {
	v, ok := r.hp[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, v, "a string")
		return def
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
