// Package validation checks the shape and numeric content of a candidate batch
// before any evaluation work is attempted.
package validation

import (
	"fmt"
	"math"

	"ExoScan/internal/domain/models"
)

const (
	DefaultMaxCandidates = 100
	DefaultMinPoints     = 100
)

// Limits bound the size of a batch. MaxCandidates <= 0 disables the cap.
type Limits struct {
	MaxCandidates int
	MinPoints     int
}

// DefaultLimits returns the limits of the model-backed path.
func DefaultLimits() Limits {
	return Limits{MaxCandidates: DefaultMaxCandidates, MinPoints: DefaultMinPoints}
}

// Result is the outcome of Validate. Batch is set only when Valid is true.
type Result struct {
	Valid  bool
	Reason string
	Batch  models.CandidateBatch
}

func invalid(format string, a ...interface{}) Result {
	return Result{Reason: fmt.Sprintf(format, a...)}
}

// Validate accepts or rejects the whole input, reporting the first violation.
// Rows are checked in index order and values within a row in index order.
func Validate(input interface{}, limits Limits) Result {
	rows, ok := asRows(input)
	if !ok {
		return invalid("Input data must be an array")
	}
	if len(rows) == 0 {
		return invalid("Input data cannot be empty")
	}
	if limits.MaxCandidates > 0 && len(rows) > limits.MaxCandidates {
		return invalid("Maximum %d candidates per request", limits.MaxCandidates)
	}

	batch := make(models.CandidateBatch, 0, len(rows))
	for i, row := range rows {
		series, ok := asSeries(row)
		if !ok {
			return invalid("Row %d must be an array", i)
		}
		if len(series) < limits.MinPoints {
			return invalid("Row %d has insufficient data points (minimum %d required)", i, limits.MinPoints)
		}
		for _, v := range series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid("Row %d contains invalid numeric values", i)
			}
		}
		batch = append(batch, series)
	}
	return Result{Valid: true, Batch: batch}
}

// CountRows returns the number of rows when input is an array, else 0.
func CountRows(input interface{}) int {
	rows, ok := asRows(input)
	if !ok {
		return 0
	}
	return len(rows)
}

func asRows(input interface{}) ([]interface{}, bool) {
	switch v := input.(type) {
	case []interface{}:
		return v, true
	case [][]float64:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case []models.FluxSeries:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	case models.CandidateBatch:
		out := make([]interface{}, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// asSeries converts one row. Non-numeric elements become NaN so that the
// finiteness check reports them as invalid numeric values.
func asSeries(row interface{}) (models.FluxSeries, bool) {
	switch v := row.(type) {
	case models.FluxSeries:
		return append(models.FluxSeries(nil), v...), true
	case []float64:
		return append(models.FluxSeries(nil), v...), true
	case []interface{}:
		out := make(models.FluxSeries, len(v))
		for i, e := range v {
			out[i] = toFloat(e)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(e interface{}) float64 {
	switch n := e.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return math.NaN()
	}
}
