// Package moments computes discrete moments of N(D) and the bulk parameters
// derived from them for every time step of a drop size distribution.
//
// Conventions, all over unmasked bins with D in mm and N in 1/m^3 1/mm:
//
//	M(n)    = Σ N(D_i)·D_i^n·ΔD_i
//	Nt      = M0                              [1/m^3]
//	W       = (π/6)·ρw·M3, ρw = 1e-3 g/mm^3   [g/m^3]
//	Dm      = M4/M3                           [mm]
//	D0      = D where cumulative M3 reaches M3/2, interpolated inside the bin [mm]
//	Dmax    = largest bin center with N > 0   [mm]
//	Nw      = (4^4/6)·M3^5/M4^4               [1/m^3 1/mm]
//	sigma_m = sqrt(Σ N·D^3·(D−Dm)^2·ΔD / M3)  [mm]
//	RR      = 6π·1e-4·Σ v(D)·N·D^3·ΔD          [mm/h]
//
// v(D) is the measured fall speed when the dataset carries one and the Atlas
// et al. (1973) relation otherwise.
package moments

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/internal/workerpool"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

const stage = "moments"

// waterDensity in g/mm^3.
const waterDensity = 1e-3

// Bulk holds the derived parameters of one time step. Each value is NaN when
// it could not be computed.
type Bulk struct {
	Nt        float64
	W         float64
	Dm        float64
	D0        float64
	Dmax      float64
	Nw        float64
	SigmaM    float64
	RainRate  float64
	Moments   map[int]float64
	ValidBins int
}

// Options configures a Calculator.
type Options struct {
	// ExtraOrders adds M<n> fields for the listed moment orders.
	ExtraOrders []int
	Workers     int
}

// Calculator appends moment and bulk-parameter fields to a dataset.
type Calculator struct {
	opts    Options
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// NewCalculator creates a Calculator. metrics may be nil.
func NewCalculator(opts Options, logger *zap.SugaredLogger, metrics *observability.Metrics) *Calculator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Calculator{opts: opts, logger: logger, metrics: metrics}
}

// Moment returns M(n) for one row over the unmasked bins, and the number of
// bins used.
func Moment(geom *dsd.BinGeometry, n float64, values []float64, mask []bool) (float64, int) {
	sum, used := 0.0, 0
	for i, v := range values {
		if mask[i] {
			continue
		}
		sum += v * math.Pow(geom.Center(i), n) * geom.Width(i)
		used++
	}
	return sum, used
}

// Step computes the bulk parameters for one row. velocity may be nil; a
// masked or missing velocity entry falls back to the Atlas relation.
func Step(geom *dsd.BinGeometry, values []float64, mask []bool, velocity []float64, velMask []bool, extra []int) (Bulk, error) {
	nan := math.NaN()
	b := Bulk{Nt: nan, W: nan, Dm: nan, D0: nan, Dmax: nan, Nw: nan, SigmaM: nan, RainRate: nan}

	var m0, m3, m4, rr float64
	dmax := nan
	for i, v := range values {
		if mask[i] {
			continue
		}
		b.ValidBins++
		d, w := geom.Center(i), geom.Width(i)
		d3 := d * d * d
		m0 += v * w
		m3 += v * d3 * w
		m4 += v * d3 * d * w

		vel := dsd.AtlasVelocity(d)
		if velocity != nil && !velMask[i] && velocity[i] > 0 {
			vel = velocity[i]
		}
		rr += vel * v * d3 * w

		if v > 0 {
			dmax = d
		}
	}

	if len(extra) > 0 {
		b.Moments = make(map[int]float64, len(extra))
	}
	if b.ValidBins == 0 {
		for _, n := range extra {
			b.Moments[n] = nan
		}
		return b, nil
	}

	for _, x := range []float64{m0, m3, m4, rr} {
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return b, fmt.Errorf("non-finite moment accumulation")
		}
	}
	for _, n := range extra {
		mn, _ := Moment(geom, float64(n), values, mask)
		if math.IsInf(mn, 0) || math.IsNaN(mn) {
			return b, fmt.Errorf("non-finite accumulation of moment M%d", n)
		}
		b.Moments[n] = mn
	}

	b.Nt = m0
	b.W = math.Pi / 6 * waterDensity * m3
	b.RainRate = 6 * math.Pi * 1e-4 * rr
	b.Dmax = dmax

	if m3 <= 0 {
		return b, nil
	}

	b.Dm = m4 / m3
	b.Nw = math.Pow(4, 4) / 6 * math.Pow(m3, 5) / math.Pow(m4, 4)
	if math.IsInf(b.Nw, 0) || math.IsNaN(b.Nw) {
		// Computed in log space when the direct form overflows.
		b.Nw = math.Exp(math.Log(256.0/6) + 5*math.Log(m3) - 4*math.Log(m4))
	}
	b.D0 = medianVolumeDiameter(geom, values, mask, m3)

	var s float64
	for i, v := range values {
		if mask[i] {
			continue
		}
		d, w := geom.Center(i), geom.Width(i)
		s += v * d * d * d * (d - b.Dm) * (d - b.Dm) * w
	}
	b.SigmaM = math.Sqrt(s / m3)
	return b, nil
}

// medianVolumeDiameter interpolates linearly across the bin in which the
// cumulative third moment crosses half of the total.
func medianVolumeDiameter(geom *dsd.BinGeometry, values []float64, mask []bool, m3 float64) float64 {
	edges := geom.Edges()
	half := m3 / 2
	cum := 0.0
	for i, v := range values {
		if mask[i] {
			continue
		}
		d := geom.Center(i)
		c := v * d * d * d * geom.Width(i)
		if c > 0 && cum+c >= half {
			frac := (half - cum) / c
			return edges[i] + frac*(edges[i+1]-edges[i])
		}
		cum += c
	}
	return math.NaN()
}

// Calculate computes every time step and appends the result fields. Steps
// that fail are masked and counted; only structural problems return an error.
func (c *Calculator) Calculate(ctx context.Context, d *dsd.DropSizeDistribution) error {
	start := time.Now()

	nd, err := d.RequireField(dsd.FieldNd)
	if err != nil {
		return err
	}
	vel := velocityField(d)

	nt := d.NumTime()
	out := map[string]*dsd.FieldSeries{
		dsd.FieldNt:          dsd.NewFieldSeries(dsd.FieldNt, dsd.UnitsPerM3, "Total droplet concentration", nt, 0),
		dsd.FieldW:           dsd.NewFieldSeries(dsd.FieldW, dsd.UnitsGramsPerM3, "Liquid water content", nt, 0),
		dsd.FieldDm:          dsd.NewFieldSeries(dsd.FieldDm, dsd.UnitsMM, "Mass-weighted mean diameter", nt, 0),
		dsd.FieldD0:          dsd.NewFieldSeries(dsd.FieldD0, dsd.UnitsMM, "Median volume diameter", nt, 0),
		dsd.FieldDmax:        dsd.NewFieldSeries(dsd.FieldDmax, dsd.UnitsMM, "Maximum drop diameter", nt, 0),
		dsd.FieldNw:          dsd.NewFieldSeries(dsd.FieldNw, dsd.UnitsConcentration, "Normalized intercept parameter", nt, 0),
		dsd.FieldSigmaM:      dsd.NewFieldSeries(dsd.FieldSigmaM, dsd.UnitsMM, "Mass spectrum standard deviation", nt, 0),
		dsd.FieldRainRateDSD: dsd.NewFieldSeries(dsd.FieldRainRateDSD, dsd.UnitsMMPerHour, "Rain rate derived from the drop size distribution", nt, 0),
	}
	order := []string{dsd.FieldNt, dsd.FieldW, dsd.FieldDm, dsd.FieldD0, dsd.FieldDmax, dsd.FieldNw, dsd.FieldSigmaM, dsd.FieldRainRateDSD}
	for _, n := range c.opts.ExtraOrders {
		name := fmt.Sprintf("M%d", n)
		if _, dup := out[name]; dup {
			continue
		}
		out[name] = dsd.NewFieldSeries(name, "", fmt.Sprintf("Moment of order %d", n), nt, 0)
		order = append(order, name)
	}

	for _, name := range order {
		if _, exists := d.Field(name); exists {
			return &dsd.FieldConflictError{Field: name, Reason: "already computed"}
		}
	}

	failed := make([]bool, nt)
	err = workerpool.ForEach(ctx, nt, c.opts.Workers, func(t int) error {
		values, mask := nd.Row(t)
		var v []float64
		var vm []bool
		if vel != nil {
			v, vm = vel.Row(t)
		}

		b, err := Step(d.Geometry, values, mask, v, vm, c.opts.ExtraOrders)
		if err != nil {
			failed[t] = true
			c.logger.Debugw("moment step failed", "error", &dsd.StepError{Stage: stage, Index: t, Reason: err.Error()})
			return nil
		}

		out[dsd.FieldNt].Set(t, 0, b.Nt)
		out[dsd.FieldW].Set(t, 0, b.W)
		out[dsd.FieldDm].Set(t, 0, b.Dm)
		out[dsd.FieldD0].Set(t, 0, b.D0)
		out[dsd.FieldDmax].Set(t, 0, b.Dmax)
		out[dsd.FieldNw].Set(t, 0, b.Nw)
		out[dsd.FieldSigmaM].Set(t, 0, b.SigmaM)
		out[dsd.FieldRainRateDSD].Set(t, 0, b.RainRate)
		for n, mn := range b.Moments {
			out[fmt.Sprintf("M%d", n)].Set(t, 0, mn)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error computing moments: %w", err)
	}

	nfailed := 0
	for _, f := range failed {
		c.metrics.Step(stage, f)
		if f {
			nfailed++
		}
	}

	for _, name := range order {
		if err := d.AddField(out[name]); err != nil {
			return err
		}
	}

	c.metrics.ObserveStage(stage, time.Since(start).Seconds())
	c.logger.Debugf("moments: %d steps, %d failed", nt, nfailed)
	return nil
}

// velocityField returns the per-bin fall speed channel when the dataset has one.
func velocityField(d *dsd.DropSizeDistribution) *dsd.FieldSeries {
	for _, name := range []string{dsd.FieldTerminalVelocity, dsd.FieldVelocity} {
		if f, ok := d.Field(name); ok && f.IsSpectral() && f.NumBins == d.NumBins() {
			return f
		}
	}
	return nil
}
