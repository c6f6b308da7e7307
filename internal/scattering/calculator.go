package scattering

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/internal/workerpool"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

const stage = "scattering"

// Calculator appends radar parameters to a dataset.
type Calculator struct {
	workers int
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// NewCalculator creates a Calculator. metrics may be nil.
func NewCalculator(workers int, logger *zap.SugaredLogger, metrics *observability.Metrics) *Calculator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Calculator{workers: workers, logger: logger, metrics: metrics}
}

// sums are the per-step integrals over bins, each weighted by N·ΔD.
type sums struct {
	hh, vv, hv float64    // 4π|S|^2
	co         complex128 // S_hh·conj(S_vv)
	kdp        float64    // Re(f_hh − f_vv)
	ah, av     float64    // Im(f)
}

// radar is one step's output; NaN marks a masked value.
type radar struct {
	zh, zv, zdr, kdp, ai, av, adr, ldr, rhohv, deltaco float64
}

// Calculate integrates every time step against table under cfg. A table
// without an entry for every bin aborts with *dsd.IncompleteScatteringTableError
// before anything is appended.
func (c *Calculator) Calculate(ctx context.Context, d *dsd.DropSizeDistribution, table Table, cfg Config) error {
	start := time.Now()

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if d.Scattering != nil {
		return &dsd.FieldConflictError{Field: dsd.FieldZh, Reason: "radar parameters already computed"}
	}

	nb := d.NumBins()
	amps := make([]Amplitudes, nb)
	for b := 0; b < nb; b++ {
		a, ok := table.Lookup(cfg, b)
		if !ok {
			return &dsd.IncompleteScatteringTableError{Config: cfg.Key(), Bin: b}
		}
		amps[b] = a
	}

	concentration, err := c.concentration(d, cfg.Pathway)
	if err != nil {
		return err
	}

	nt := d.NumTime()
	results := make([]radar, nt)
	lambda := cfg.Wavelength()
	constant := cfg.ReflectivityConstant()

	err = workerpool.ForEach(ctx, nt, c.workers, func(t int) error {
		values, mask, ok := concentration(t)
		if !ok {
			results[t] = maskedRadar()
			return nil
		}
		results[t] = integrate(d.Geometry, amps, values, mask).convert(lambda, constant, cfg.Floor())
		return nil
	})
	if err != nil {
		return fmt.Errorf("error computing radar parameters: %w", err)
	}

	fields := []*dsd.FieldSeries{
		dsd.NewFieldSeries(dsd.FieldZh, dsd.UnitsDBZ, "Horizontal reflectivity", nt, 0),
		dsd.NewFieldSeries(dsd.FieldZv, dsd.UnitsDBZ, "Vertical reflectivity", nt, 0),
		dsd.NewFieldSeries(dsd.FieldZdr, dsd.UnitsDB, "Differential reflectivity", nt, 0),
		dsd.NewFieldSeries(dsd.FieldKdp, dsd.UnitsDegPerKM, "Specific differential phase", nt, 0),
		dsd.NewFieldSeries(dsd.FieldAi, dsd.UnitsDBPerKM, "Specific attenuation, horizontal", nt, 0),
		dsd.NewFieldSeries(dsd.FieldAv, dsd.UnitsDBPerKM, "Specific attenuation, vertical", nt, 0),
		dsd.NewFieldSeries(dsd.FieldAdr, dsd.UnitsDBPerKM, "Specific differential attenuation", nt, 0),
		dsd.NewFieldSeries(dsd.FieldLDR, dsd.UnitsDB, "Linear depolarization ratio", nt, 0),
		dsd.NewFieldSeries(dsd.FieldRhoHV, dsd.UnitsNone, "Copolar correlation coefficient", nt, 0),
		dsd.NewFieldSeries(dsd.FieldDeltaCo, dsd.UnitsDegrees, "Backscatter differential phase", nt, 0),
	}
	nfailed := 0
	for t, r := range results {
		vals := []float64{r.zh, r.zv, r.zdr, r.kdp, r.ai, r.av, r.adr, r.ldr, r.rhohv, r.deltaco}
		for i, v := range vals {
			fields[i].Set(t, 0, v)
		}
		masked := math.IsNaN(r.zh)
		if masked {
			nfailed++
		}
		c.metrics.Step(stage, masked)
	}

	for _, f := range fields {
		if err := d.AddField(f); err != nil {
			return err
		}
	}
	d.Scattering = &dsd.ScatteringInfo{
		FrequencyHz:  cfg.FrequencyHz,
		TemperatureC: cfg.TemperatureC,
		ElevationDeg: cfg.ElevationDeg,
		Source:       string(cfg.Pathway),
	}

	c.metrics.ObserveStage(stage, time.Since(start).Seconds())
	c.logger.Debugf("scattering (%s, %s): %d steps, %d masked", cfg.Key(), cfg.Pathway, nt, nfailed)
	return nil
}

// concentration returns a function giving the row to integrate at step t,
// or false when the step has no concentration at all (a failed fit).
func (c *Calculator) concentration(d *dsd.DropSizeDistribution, pathway Pathway) (func(t int) ([]float64, []bool, bool), error) {
	switch pathway {
	case PathwayFitted:
		if d.Fit == nil {
			return nil, fmt.Errorf("fitted scattering pathway requires a gamma fit")
		}
		nb := d.NumBins()
		return func(t int) ([]float64, []bool, bool) {
			g := d.Fit.Steps[t]
			if !g.OK {
				return nil, nil, false
			}
			values := make([]float64, nb)
			for b := range values {
				values[b] = g.Eval(d.Geometry.Center(b))
			}
			return values, make([]bool, nb), true
		}, nil
	default:
		nd, err := d.RequireField(dsd.FieldNd)
		if err != nil {
			return nil, err
		}
		return func(t int) ([]float64, []bool, bool) {
			values, mask := nd.Row(t)
			return values, mask, true
		}, nil
	}
}

func integrate(geom *dsd.BinGeometry, amps []Amplitudes, values []float64, mask []bool) sums {
	var s sums
	for b, n := range values {
		if mask[b] {
			continue
		}
		w := n * geom.Width(b)
		a := amps[b]
		s.hh += w * 4 * math.Pi * sq(cmplx.Abs(a.Shh))
		s.vv += w * 4 * math.Pi * sq(cmplx.Abs(a.Svv))
		s.hv += w * 4 * math.Pi * sq(cmplx.Abs(a.Shv))
		s.co += complex(w, 0) * a.Shh * cmplx.Conj(a.Svv)
		s.kdp += w * real(a.Fhh-a.Fvv)
		s.ah += w * imag(a.Fhh)
		s.av += w * imag(a.Fvv)
	}
	return s
}

func maskedRadar() radar {
	nan := math.NaN()
	return radar{nan, nan, nan, nan, nan, nan, nan, nan, nan, nan}
}

// convert turns the integrals into radar parameters. A step without any
// valid bin integrates to zero, so reflectivities take the floor and ratios
// are masked.
func (s sums) convert(lambda, constant, floor float64) radar {
	nan := math.NaN()
	r := radar{
		zh:  toDB(constant*s.hh, floor),
		zv:  toDB(constant*s.vv, floor),
		zdr: toDB(ratio(s.hh, s.vv), floor),
		ldr: toDB(ratio(s.hv, s.hh), floor),
		// λ and amplitudes in mm, N·ΔD in 1/m^3.
		kdp: 1e-3 * (180 / math.Pi) * lambda * s.kdp,
		ai:  8.686e-3 * lambda * s.ah,
		av:  8.686e-3 * lambda * s.av,
	}
	r.adr = r.ai - r.av

	if den := math.Sqrt(s.hh * s.vv); den > 0 {
		r.rhohv = cmplx.Abs(s.co) * 4 * math.Pi / den
	} else {
		r.rhohv = nan
	}
	if s.co != 0 {
		r.deltaco = cmplx.Phase(s.co) * 180 / math.Pi
	} else {
		r.deltaco = nan
	}
	return r
}

// ratio returns a/b, NaN for the undefined 0/0 and x/0 cases.
func ratio(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// toDB converts a linear quantity to decibels. Non-positive values take
// the floor; NaN stays NaN so the caller masks it.
func toDB(x, floor float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	if x <= 0 {
		return floor
	}
	return 10 * math.Log10(x)
}

func sq(x float64) float64 { return x * x }
