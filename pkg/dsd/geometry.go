package dsd

import (
	"fmt"
	"math"
	"sort"
)

// BinGeometry is an ordered, immutable set of diameter bins. All time steps
// of a dataset share one geometry by reference.
type BinGeometry struct {
	centers []float64 // mm
	spread  []float64 // mm
	edges   []float64 // mm, len(centers)+1
}

// NewBinGeometry validates centers and spreads and derives the bin edges as
// edges[0] = 0, edges[i+1] = centers[i] + spread[i]/2.
func NewBinGeometry(centers, spread []float64) (*BinGeometry, error) {
	if len(centers) == 0 {
		return nil, fmt.Errorf("%w: no bins", ErrInvalidGeometry)
	}
	if len(centers) != len(spread) {
		return nil, fmt.Errorf("%w: %d centers but %d spreads", ErrInvalidGeometry, len(centers), len(spread))
	}

	for i := range centers {
		c, s := centers[i], spread[i]
		if math.IsNaN(c) || math.IsInf(c, 0) || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: non-finite value at bin %d", ErrInvalidGeometry, i)
		}
		if c <= 0 {
			return nil, fmt.Errorf("%w: center %g at bin %d is not positive", ErrInvalidGeometry, c, i)
		}
		if s <= 0 {
			return nil, fmt.Errorf("%w: spread %g at bin %d is not positive", ErrInvalidGeometry, s, i)
		}
		if i > 0 && c <= centers[i-1] {
			return nil, fmt.Errorf("%w: centers not strictly increasing at bin %d", ErrInvalidGeometry, i)
		}
	}

	g := &BinGeometry{
		centers: append([]float64(nil), centers...),
		spread:  append([]float64(nil), spread...),
		edges:   make([]float64, len(centers)+1),
	}
	for i := range centers {
		g.edges[i+1] = centers[i] + spread[i]/2
	}
	for i := 1; i < len(g.edges); i++ {
		if g.edges[i] <= g.edges[i-1] {
			return nil, fmt.Errorf("%w: edges not strictly increasing at edge %d (%g <= %g)",
				ErrInvalidGeometry, i, g.edges[i], g.edges[i-1])
		}
	}

	return g, nil
}

// NumBins returns the number of diameter bins.
func (g *BinGeometry) NumBins() int { return len(g.centers) }

// Centers returns a copy of the bin center diameters in mm.
func (g *BinGeometry) Centers() []float64 { return append([]float64(nil), g.centers...) }

// Spread returns a copy of the bin widths in mm.
func (g *BinGeometry) Spread() []float64 { return append([]float64(nil), g.spread...) }

// Edges returns a copy of the N+1 bin edges in mm.
func (g *BinGeometry) Edges() []float64 { return append([]float64(nil), g.edges...) }

// Center returns the center diameter of bin i.
func (g *BinGeometry) Center(i int) float64 { return g.centers[i] }

// Width returns the spread of bin i.
func (g *BinGeometry) Width(i int) float64 { return g.spread[i] }

// BinIndex returns the bin containing diameter d, i.e. edges[i] < d <= edges[i+1],
// or -1 when d is outside the geometry.
func (g *BinGeometry) BinIndex(d float64) int {
	if d <= g.edges[0] || d > g.edges[len(g.edges)-1] {
		return -1
	}
	return sort.SearchFloat64s(g.edges, d) - 1
}

// Parsivel² diameter classes (mm), 32 bins.
var parsivelCenters = []float64{
	0.0625, 0.1875, 0.3125, 0.4375, 0.5625, 0.6875, 0.8125, 0.9375, 1.0625,
	1.1875, 1.375, 1.625, 1.875, 2.125, 2.375, 2.75, 3.25, 3.75, 4.25,
	4.75, 5.5, 6.5, 7.5, 8.5, 9.5, 11., 13., 15., 17., 19., 21.5, 24.5,
}

var parsivelSpread = []float64{
	0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125,
	0.250, 0.250, 0.250, 0.250, 0.250, 0.500, 0.500, 0.500, 0.500, 0.500,
	1.000, 1.000, 1.000, 1.000, 1.000, 2.000, 2.000, 2.000, 2.000, 2.000,
	3.000, 3.000,
}

// Parsivel² fall velocity classes (m/s), 32 bins.
var parsivelVelocities = []float64{
	0.05, 0.15, 0.25, 0.35, 0.45, 0.55, 0.65, 0.75, 0.85, 0.95, 1.1, 1.3,
	1.5, 1.7, 1.9, 2.2, 2.6, 3.0, 3.4, 3.8, 4.4, 5.2, 6.0, 6.8, 7.6, 8.8,
	10.4, 12.0, 13.6, 15.2, 17.6, 20.8,
}

// ParsivelGeometry returns the 32-class OTT Parsivel² diameter geometry.
func ParsivelGeometry() *BinGeometry {
	g, err := NewBinGeometry(parsivelCenters, parsivelSpread)
	if err != nil {
		// The table above is constant.
		panic(err)
	}
	return g
}

// ParsivelVelocityClasses returns the 32 Parsivel² fall velocity class centers in m/s.
func ParsivelVelocityClasses() []float64 {
	return append([]float64(nil), parsivelVelocities...)
}
