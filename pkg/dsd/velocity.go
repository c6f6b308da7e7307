package dsd

import "math"

// AtlasVelocity returns the Atlas et al. (1973) terminal fall speed in m/s for
// a raindrop of diameter d in mm, clamped at zero for very small drops.
func AtlasVelocity(d float64) float64 {
	v := 9.65 - 10.3*math.Exp(-0.6*d)
	if v < 0 {
		return 0
	}
	return v
}
