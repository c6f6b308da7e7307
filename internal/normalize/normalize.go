// Package normalize converts raw source channels into calibrated FieldSeries.
// Spectral concentration output is always time-major and labeled 1/m^3 1/mm.
package normalize

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// Parsivel² beam dimensions in mm.
const (
	DefaultBeamLength = 180.0
	DefaultBeamWidth  = 30.0
)

// DefaultFloor is the concentration (1/m^3 1/mm) at or below which bins are masked.
const DefaultFloor = 1.0

// Options configures a Normalizer. Zero values select the defaults.
type Options struct {
	// Encoding overrides the encoding hint carried by the raw field.
	Encoding source.Encoding
	// Floor: concentrations at or below it are masked. Nil selects
	// DefaultFloor; zero masks only non-positive values.
	Floor *float64
	// DisableFloor turns off floor masking entirely.
	DisableFloor bool
	// SampleInterval is the accumulation time of a counts spectrum. Defaults to 60s.
	SampleInterval time.Duration
	// BeamLength and BeamWidth are the sensor beam dimensions in mm.
	BeamLength float64
	BeamWidth  float64
	// VelocityClasses are the fall speed class centers (m/s) of a
	// diameter × velocity count matrix. Defaults to the Parsivel² classes.
	VelocityClasses []float64
	// BinVelocities are per-diameter fall speeds (m/s) used for counts
	// without a velocity dimension. Defaults to the Atlas relation.
	BinVelocities []float64
}

// Normalizer converts raw channels for one geometry.
type Normalizer struct {
	opts   Options
	floor  float64
	logger *zap.SugaredLogger
}

// New creates a Normalizer, filling unset options with defaults.
func New(opts Options, logger *zap.SugaredLogger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 60 * time.Second
	}
	if opts.BeamLength == 0 {
		opts.BeamLength = DefaultBeamLength
	}
	if opts.BeamWidth == 0 {
		opts.BeamWidth = DefaultBeamWidth
	}
	if len(opts.VelocityClasses) == 0 {
		opts.VelocityClasses = dsd.ParsivelVelocityClasses()
	}
	floor := DefaultFloor
	if opts.Floor != nil {
		floor = *opts.Floor
	}
	return &Normalizer{opts: opts, floor: floor, logger: logger}
}

// Normalize converts a raw spectrum channel to concentration N(D).
func (n *Normalizer) Normalize(raw source.RawField, geom *dsd.BinGeometry) (*dsd.FieldSeries, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	enc := n.opts.Encoding
	if enc == source.EncodingPlain {
		enc = raw.Encoding
	}

	var out *dsd.FieldSeries
	var err error
	switch enc {
	case source.EncodingLog10:
		out, err = n.concentration(raw, geom, func(x float64) float64 { return math.Pow(10, x) })
		if err == nil && raw.HasFill {
			out.FillValue = math.Pow(10, raw.FillValue)
		}
	case source.EncodingLinear:
		out, err = n.concentration(raw, geom, func(x float64) float64 { return x })
		if err == nil && raw.HasFill {
			out.FillValue = raw.FillValue
		}
	case source.EncodingCounts:
		// The count to concentration factor differs per bin, so the fill
		// stays the raw sentinel.
		out, err = n.counts(raw, geom)
		if err == nil && raw.HasFill {
			out.FillValue = raw.FillValue
		}
	default:
		return nil, fmt.Errorf("field %q: no spectrum encoding given", raw.Name)
	}
	if err != nil {
		return nil, err
	}

	out.Units = dsd.UnitsConcentration
	n.logger.Debugf("normalized %s (%s): %d of %d bins valid", raw.Name, enc, out.ValidCount(), out.Len())
	return out, nil
}

// concentration applies an elementwise transform to a (time, bin) field.
func (n *Normalizer) concentration(raw source.RawField, geom *dsd.BinGeometry, transform func(float64) float64) (*dsd.FieldSeries, error) {
	nt, nb, at, err := spectralIndexer(raw, geom)
	if err != nil {
		return nil, err
	}

	out := dsd.NewFieldSeries(raw.Name, dsd.UnitsConcentration, description(raw), nt, nb)
	for t := 0; t < nt; t++ {
		for b := 0; b < nb; b++ {
			i := at(t, b)
			if raw.Missing(i) {
				continue
			}
			n.store(out, t, b, transform(raw.Data[i]))
		}
	}
	return out, nil
}

// counts converts particle counts per sampling interval to concentration:
// N(D_i) = Σ_j n_ij / (A(D_i)·Δt·v_j·ΔD_i), with A(D) = L·(W − D/2).
func (n *Normalizer) counts(raw source.RawField, geom *dsd.BinGeometry) (*dsd.FieldSeries, error) {
	nb := geom.NumBins()
	dt := n.opts.SampleInterval.Seconds()

	var nt, nv int
	var velocity func(b, j int) float64
	var at func(t, b, j int) int

	switch len(raw.Shape) {
	case 3:
		if raw.Shape[1] != nb {
			return nil, fmt.Errorf("field %q: %d diameter classes, geometry has %d", raw.Name, raw.Shape[1], nb)
		}
		nt, nv = raw.Shape[0], raw.Shape[2]
		if nv != len(n.opts.VelocityClasses) {
			return nil, fmt.Errorf("field %q: %d velocity classes, %d configured", raw.Name, nv, len(n.opts.VelocityClasses))
		}
		velocity = func(_, j int) float64 { return n.opts.VelocityClasses[j] }
		at = func(t, b, j int) int { return (t*nb+b)*nv + j }
	case 2:
		var idx func(t, b int) int
		var err error
		nt, _, idx, err = spectralIndexer(raw, geom)
		if err != nil {
			return nil, err
		}
		nv = 1
		if len(n.opts.BinVelocities) != 0 && len(n.opts.BinVelocities) != nb {
			return nil, fmt.Errorf("field %q: %d bin velocities for %d bins", raw.Name, len(n.opts.BinVelocities), nb)
		}
		velocity = func(b, _ int) float64 {
			if len(n.opts.BinVelocities) == nb {
				return n.opts.BinVelocities[b]
			}
			return dsd.AtlasVelocity(geom.Center(b))
		}
		at = func(t, b, _ int) int { return idx(t, b) }
	default:
		return nil, fmt.Errorf("field %q: counts need 2 or 3 dimensions, have %d", raw.Name, len(raw.Shape))
	}

	out := dsd.NewFieldSeries(raw.Name, dsd.UnitsConcentration, description(raw), nt, nb)
	for b := 0; b < nb; b++ {
		d := geom.Center(b)
		area := n.opts.BeamLength * (n.opts.BeamWidth - d/2) * 1e-6 // m^2
		if area <= 0 {
			continue
		}
		width := geom.Width(b)

		for t := 0; t < nt; t++ {
			sum, seen := 0.0, false
			for j := 0; j < nv; j++ {
				i := at(t, b, j)
				if raw.Missing(i) {
					continue
				}
				v := velocity(b, j)
				if v <= 0 {
					continue
				}
				seen = true
				sum += raw.Data[i] / (area * dt * v * width)
			}
			if seen {
				n.store(out, t, b, sum)
			}
		}
	}
	return out, nil
}

func (n *Normalizer) store(out *dsd.FieldSeries, t, b int, v float64) {
	if !n.opts.DisableFloor && v <= n.floor {
		return
	}
	out.Set(t, b, v)
}

// Channel converts a non-concentration channel (velocity, rain rate,
// reflectivity) without changing units. Missing entries become masked and
// spectral channels are reoriented to time-major.
func Channel(raw source.RawField, geom *dsd.BinGeometry) (*dsd.FieldSeries, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}

	switch len(raw.Shape) {
	case 1:
		nt := raw.Shape[0]
		out := dsd.NewFieldSeries(raw.Name, raw.Units, raw.Description, nt, 0)
		for t := 0; t < nt; t++ {
			if !raw.Missing(t) {
				out.Set(t, 0, raw.Data[t])
			}
		}
		return out, nil
	case 2:
		nt, nb, at, err := spectralIndexer(raw, geom)
		if err != nil {
			return nil, err
		}
		out := dsd.NewFieldSeries(raw.Name, raw.Units, raw.Description, nt, nb)
		for t := 0; t < nt; t++ {
			for b := 0; b < nb; b++ {
				if i := at(t, b); !raw.Missing(i) {
					out.Set(t, b, raw.Data[i])
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q: unsupported %d-D channel", raw.Name, len(raw.Shape))
	}
}

// spectralIndexer returns the time and bin counts of a 2-D field and a
// function mapping (t, b) to its storage index.
func spectralIndexer(raw source.RawField, geom *dsd.BinGeometry) (int, int, func(t, b int) int, error) {
	if len(raw.Shape) != 2 {
		return 0, 0, nil, fmt.Errorf("field %q: expected 2 dimensions, have %d", raw.Name, len(raw.Shape))
	}
	nb := geom.NumBins()

	switch raw.Order {
	case source.TimeMajor:
		if raw.Shape[1] != nb {
			return 0, 0, nil, fmt.Errorf("field %q: %d bins, geometry has %d", raw.Name, raw.Shape[1], nb)
		}
		return raw.Shape[0], nb, func(t, b int) int { return t*nb + b }, nil
	case source.BinMajor:
		if raw.Shape[0] != nb {
			return 0, 0, nil, fmt.Errorf("field %q: %d bins, geometry has %d", raw.Name, raw.Shape[0], nb)
		}
		nt := raw.Shape[1]
		return nt, nb, func(t, b int) int { return b*nt + t }, nil
	default:
		return 0, 0, nil, fmt.Errorf("field %q: unknown axis order %v", raw.Name, raw.Order)
	}
}

func description(raw source.RawField) string {
	if raw.Description != "" {
		return raw.Description
	}
	return "Drop size distribution"
}
