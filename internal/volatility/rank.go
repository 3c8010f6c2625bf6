package volatility

import "math"

// IVRank returns where current sits in the historical min/max range, in [0, 1].
// It returns 0.5 when history is empty or flat.
func IVRank(current float64, history []float64) float64 {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	n := 0
	for _, v := range history {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		n++
	}
	if n == 0 || hi-lo <= 0 || current <= 0 || math.IsNaN(current) {
		return 0.5
	}
	r := (current - lo) / (hi - lo)
	return math.Min(1, math.Max(0, r))
}

// IVPercentile returns the fraction of historical readings below current.
// It returns 0.5 when history is empty.
func IVPercentile(current float64, history []float64) float64 {
	below, n := 0, 0
	for _, v := range history {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		n++
		if v < current {
			below++
		}
	}
	if n == 0 || math.IsNaN(current) {
		return 0.5
	}
	return float64(below) / float64(n)
}
