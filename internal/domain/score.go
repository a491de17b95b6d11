package domain

import "math"

// Clamp01 bounds a score to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round2 rounds to two decimals for reporting.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
