// Package heuristic implements the in-process statistical transit classifier
// used when the trained model is not available.
package heuristic

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"ExoScan/internal/domain/models"
)

// Params holds every heuristic constant. The defaults carry no derivation;
// they stand in for the trained model.
type Params struct {
	StdDevThreshold   float64 `yaml:"std_dev_threshold" default:"0.01"`
	StdDevWeight      float64 `yaml:"std_dev_weight" default:"0.2"`
	RangeThreshold    float64 `yaml:"range_threshold" default:"0.05"`
	RangeWeight       float64 `yaml:"range_weight" default:"0.2"`
	MinDips           int     `yaml:"min_dips" default:"3"`
	DipWeight         float64 `yaml:"dip_weight" default:"0.3"`
	DipFactor         float64 `yaml:"dip_factor" default:"0.5"`
	VarianceThreshold float64 `yaml:"variance_threshold" default:"0.001"`
	VarianceWeight    float64 `yaml:"variance_weight" default:"0.15"`
	OutlierFraction   float64 `yaml:"outlier_fraction" default:"0.05"`
	OutlierWeight     float64 `yaml:"outlier_weight" default:"0.15"`
	JitterMagnitude   float64 `yaml:"jitter_magnitude" default:"0.05" validate:"gte=0,lte=1"`
	DecisionThreshold float64 `yaml:"decision_threshold" default:"0.5" validate:"gte=0,lte=1"`
}

// DefaultParams returns the stock weights.
func DefaultParams() Params {
	return Params{
		StdDevThreshold:   0.01,
		StdDevWeight:      0.2,
		RangeThreshold:    0.05,
		RangeWeight:       0.2,
		MinDips:           3,
		DipWeight:         0.3,
		DipFactor:         0.5,
		VarianceThreshold: 0.001,
		VarianceWeight:    0.15,
		OutlierFraction:   0.05,
		OutlierWeight:     0.15,
		JitterMagnitude:   0.05,
		DecisionThreshold: 0.5,
	}
}

// Rand is the randomness source for the jitter term. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// RawScore is the weighted score before jitter and clamping.
func RawScore(s SeriesStats, n int, p Params) float64 {
	score := 0.0
	if s.StdDev > p.StdDevThreshold {
		score += p.StdDevWeight
	}
	if s.Range > p.RangeThreshold {
		score += p.RangeWeight
	}
	if s.Dips >= p.MinDips {
		score += p.DipWeight
	}
	if s.Variance > p.VarianceThreshold {
		score += p.VarianceWeight
	}
	if float64(s.Outliers) > float64(n)*p.OutlierFraction {
		score += p.OutlierWeight
	}
	return score
}

// Score classifies one series. It has no side effects beyond drawing one
// value from rnd.
func Score(series models.FluxSeries, p Params, rnd Rand) models.Verdict {
	if len(series) == 0 {
		return models.Verdict{IsCandidate: false, Confidence: 0}
	}
	stats := ComputeStats(series, p.DipFactor)
	score := RawScore(stats, len(series), p)

	jitter := 0.0
	if rnd != nil && p.JitterMagnitude > 0 {
		jitter = (2*rnd.Float64() - 1) * p.JitterMagnitude
	}
	confidence := round4(clamp01(score + jitter))
	return models.Verdict{
		IsCandidate: confidence > p.DecisionThreshold,
		Confidence:  confidence,
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Classifier applies Score to whole batches. It is safe for concurrent use.
type Classifier struct {
	params Params
	mu     sync.Mutex
	rnd    Rand
}

// New creates a classifier seeded from seed; seed 0 seeds from the clock.
func New(p Params, seed int64) *Classifier {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewWithRand(p, rand.New(rand.NewSource(seed)))
}

// NewWithRand creates a classifier drawing jitter from rnd.
func NewWithRand(p Params, rnd Rand) *Classifier {
	return &Classifier{params: p, rnd: rnd}
}

// Params returns the configured weights.
func (c *Classifier) Params() Params { return c.params }

// Classify returns one verdict per series, in input order.
func (c *Classifier) Classify(batch models.CandidateBatch) []models.Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Verdict, len(batch))
	for i, series := range batch {
		out[i] = Score(series, c.params, c.rnd)
	}
	return out
}
