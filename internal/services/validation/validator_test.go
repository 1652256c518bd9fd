package validation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowOf(n int, v float64) []interface{} {
	row := make([]interface{}, n)
	for i := range row {
		row[i] = v
	}
	return row
}

func batchOf(rows, points int) []interface{} {
	b := make([]interface{}, rows)
	for i := range b {
		b[i] = rowOf(points, 1.0)
	}
	return b
}

func TestValidate_Rejections(t *testing.T) {
	shortRow3 := batchOf(5, 100)
	shortRow3[3] = rowOf(99, 1.0)

	nonNumeric := batchOf(3, 100)
	bad := rowOf(100, 1.0)
	bad[42] = "abc"
	nonNumeric[1] = bad

	nullValue := batchOf(2, 100)
	withNull := rowOf(100, 1.0)
	withNull[0] = nil
	nullValue[0] = withNull

	notArrayRow := batchOf(3, 100)
	notArrayRow[2] = "1,2,3"

	tests := []struct {
		name   string
		input  interface{}
		reason string
	}{
		{"nil input", nil, "Input data must be an array"},
		{"string input", "1,2,3", "Input data must be an array"},
		{"object input", map[string]interface{}{"a": 1}, "Input data must be an array"},
		{"number input", 42.0, "Input data must be an array"},
		{"empty batch", []interface{}{}, "Input data cannot be empty"},
		{"too many candidates", batchOf(101, 100), "Maximum 100 candidates per request"},
		{"row not array", notArrayRow, "Row 2 must be an array"},
		{"short row 3", shortRow3, "Row 3 has insufficient data points (minimum 100 required)"},
		{"non numeric entry", nonNumeric, "Row 1 contains invalid numeric values"},
		{"null entry", nullValue, "Row 0 contains invalid numeric values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.input, DefaultLimits())
			assert.False(t, res.Valid)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Batch)
		})
	}
}

func TestValidate_NaNAndInf(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		rows := make([][]float64, 2)
		for i := range rows {
			rows[i] = make([]float64, 100)
		}
		rows[1][99] = v
		res := Validate(rows, DefaultLimits())
		assert.False(t, res.Valid)
		assert.Equal(t, "Row 1 contains invalid numeric values", res.Reason)
	}
}

func TestValidate_FirstViolationWins(t *testing.T) {
	b := batchOf(3, 100)
	b[0] = rowOf(10, 1.0) // short
	b[1] = "nope"         // not an array, but later
	res := Validate(b, DefaultLimits())
	require.False(t, res.Valid)
	assert.Equal(t, "Row 0 has insufficient data points (minimum 100 required)", res.Reason)
}

func TestValidate_AcceptsDecodedJSON(t *testing.T) {
	var input interface{}
	payload := `[` + jsonRow(100, "0.5") + `,` + jsonRow(120, "-1.25") + `]`
	require.NoError(t, json.Unmarshal([]byte(payload), &input))

	res := Validate(input, DefaultLimits())
	require.True(t, res.Valid, res.Reason)
	require.Len(t, res.Batch, 2)
	assert.Len(t, res.Batch[0], 100)
	assert.Len(t, res.Batch[1], 120)
	assert.Equal(t, -1.25, res.Batch[1][119])
}

func TestValidate_MaxBoundaryAndUnbounded(t *testing.T) {
	res := Validate(batchOf(100, 100), DefaultLimits())
	assert.True(t, res.Valid)

	res = Validate(batchOf(250, 1), Limits{MaxCandidates: 0, MinPoints: 1})
	assert.True(t, res.Valid)
	assert.Len(t, res.Batch, 250)
}

func TestValidate_Idempotent(t *testing.T) {
	input := batchOf(4, 100)
	first := Validate(input, DefaultLimits())
	second := Validate(input, DefaultLimits())
	third := Validate(first.Batch, DefaultLimits())

	assert.True(t, first.Valid)
	assert.Equal(t, first, second)
	assert.True(t, third.Valid)
	assert.Equal(t, first.Batch, third.Batch)
}

func TestCountRows(t *testing.T) {
	assert.Equal(t, 0, CountRows("x"))
	assert.Equal(t, 3, CountRows(batchOf(3, 1)))
}

func jsonRow(n int, v string) string {
	s := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += v
	}
	return s + "]"
}
