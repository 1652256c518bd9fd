package heuristic

import (
	"math/rand"
	"sync"
	"testing"

	"ExoScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand always returns the same draw.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func constant(n int, v float64) models.FluxSeries {
	s := make(models.FluxSeries, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// transitSeries is flat at 1.0 with four separated 0.9 dips.
func transitSeries() models.FluxSeries {
	s := constant(200, 1.0)
	for _, i := range []int{20, 70, 120, 170} {
		s[i] = 0.9
	}
	return s
}

// strongSeries trips every threshold: a 0.8 dip every ten points.
func strongSeries() models.FluxSeries {
	s := constant(100, 1.0)
	for i := 5; i < 100; i += 10 {
		s[i] = 0.8
	}
	return s
}

func TestScore_EmptySeries(t *testing.T) {
	v := Score(models.FluxSeries{}, DefaultParams(), fixedRand(0.99))
	assert.False(t, v.IsCandidate)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestScore_ConstantSeriesIsJitterOnly(t *testing.T) {
	tests := []struct {
		draw float64
		want float64
	}{
		{0.5, 0},
		{0.0, 0},      // -0.05 clamps to 0
		{0.99, 0.049}, // (2*0.99-1)*0.05
		{0.75, 0.025},
	}
	for _, tt := range tests {
		v := Score(constant(100, 1.0), DefaultParams(), fixedRand(tt.draw))
		assert.InDelta(t, tt.want, v.Confidence, 1e-9)
		assert.False(t, v.IsCandidate)
	}
}

func TestScore_TransitSeriesPositiveAcrossJitter(t *testing.T) {
	stats := ComputeStats(transitSeries(), 0.5)
	assert.Equal(t, 4, stats.Dips)
	assert.Greater(t, stats.StdDev, 0.01)
	assert.Greater(t, stats.Range, 0.05)
	assert.InDelta(t, 0.7, RawScore(stats, 200, DefaultParams()), 1e-9)

	for _, draw := range []float64{0, 0.25, 0.5, 0.75, 0.999999} {
		v := Score(transitSeries(), DefaultParams(), fixedRand(draw))
		assert.True(t, v.IsCandidate, "draw %v", draw)
		assert.GreaterOrEqual(t, v.Confidence, 0.65)
		assert.LessOrEqual(t, v.Confidence, 0.75)
	}

	v := Score(transitSeries(), DefaultParams(), fixedRand(0.5))
	assert.Equal(t, 0.7, v.Confidence)
}

func TestScore_AllWeightsClampToOne(t *testing.T) {
	stats := ComputeStats(strongSeries(), 0.5)
	assert.Equal(t, 10, stats.Dips)
	assert.Equal(t, 10, stats.Outliers)
	assert.Greater(t, stats.Variance, 0.001)

	v := Score(strongSeries(), DefaultParams(), fixedRand(0.999))
	assert.Equal(t, 1.0, v.Confidence)
	assert.True(t, v.IsCandidate)
}

func TestScore_RoundsToFourDecimals(t *testing.T) {
	v := Score(constant(50, 2.0), DefaultParams(), fixedRand(0.7777777))
	assert.Equal(t, 0.0278, v.Confidence)
}

func TestScore_ConfigurableWeights(t *testing.T) {
	p := DefaultParams()
	p.DipWeight = 0
	p.JitterMagnitude = 0
	v := Score(transitSeries(), p, nil)
	assert.Equal(t, 0.4, v.Confidence)
	assert.False(t, v.IsCandidate)
}

func TestComputeStats_Basics(t *testing.T) {
	s := ComputeStats([]float64{1, 2, 3, 4}, 0.5)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 1.25, s.Variance)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 3.0, s.Range)
	assert.Equal(t, 0, s.Dips)
	assert.Equal(t, 1, s.Outliers)
}

func TestCountDips_ExcludesEndpoints(t *testing.T) {
	// endpoints are the lowest values but never count
	assert.Equal(t, 0, CountDips([]float64{0, 5, 5, 0}, 2.5, 0))
	assert.Equal(t, 1, CountDips([]float64{5, 0, 5}, 10.0/3, 1))
}

func TestClassifier_OrderAndDeterminism(t *testing.T) {
	batch := models.CandidateBatch{constant(100, 0), transitSeries(), constant(100, 0), strongSeries()}

	a := New(DefaultParams(), 42).Classify(batch)
	b := New(DefaultParams(), 42).Classify(batch)
	require.Len(t, a, len(batch))
	assert.Equal(t, a, b)

	assert.False(t, a[0].IsCandidate)
	assert.True(t, a[1].IsCandidate)
	assert.False(t, a[2].IsCandidate)
	assert.True(t, a[3].IsCandidate)
}

func TestClassifier_ConcurrentUse(t *testing.T) {
	c := NewWithRand(DefaultParams(), rand.New(rand.NewSource(7)))
	batch := models.CandidateBatch{transitSeries(), constant(100, 1)}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := c.Classify(batch)
			assert.Len(t, out, 2)
			assert.True(t, out[0].IsCandidate)
			assert.False(t, out[1].IsCandidate)
		}()
	}
	wg.Wait()
}
