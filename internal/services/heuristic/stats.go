package heuristic

import "math"

// SeriesStats are the summary statistics the classifier scores on.
type SeriesStats struct {
	Mean     float64
	Variance float64 // population variance
	StdDev   float64
	Min      float64
	Max      float64
	Range    float64
	Dips     int
	Outliers int
}

// ComputeStats summarises a non-empty series. dipFactor scales the standard
// deviation a local minimum must fall below the mean to count as a dip.
func ComputeStats(series []float64, dipFactor float64) SeriesStats {
	var s SeriesStats
	n := len(series)
	if n == 0 {
		return s
	}

	sum := 0.0
	s.Min, s.Max = series[0], series[0]
	for _, v := range series {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(n)

	sq := 0.0
	for _, v := range series {
		d := v - s.Mean
		sq += d * d
	}
	s.Variance = sq / float64(n)
	s.StdDev = math.Sqrt(s.Variance)
	s.Range = s.Max - s.Min

	s.Dips = CountDips(series, s.Mean, s.StdDev*dipFactor)
	for _, v := range series {
		if v < s.Mean-s.StdDev {
			s.Outliers++
		}
	}
	return s
}

// CountDips counts interior points strictly below both neighbours whose
// distance below mean exceeds depth.
func CountDips(series []float64, mean, depth float64) int {
	dips := 0
	for i := 1; i < len(series)-1; i++ {
		v := series[i]
		if v < series[i-1] && v < series[i+1] && mean-v > depth {
			dips++
		}
	}
	return dips
}
