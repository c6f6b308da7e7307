// Package fit fits the gamma model N(D) = N0·D^μ·exp(−ΛD) to each time step
// using a pluggable estimation strategy. Fits are stateless per step and a
// failed step is recorded, never returned as an error.
package fit

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// Fitter defines the interface for gamma estimation strategies.
type Fitter interface {
	// Fit estimates the gamma parameters for one row. Masked bins and bins
	// with non-positive concentration are excluded.
	Fit(geom *dsd.BinGeometry, values []float64, mask []bool) dsd.GammaFit
}

// Method identifies the estimation strategy
type Method string

const (
	// MethodLogLinear solves ln N = ln N0 + μ ln D − ΛD by linear least squares.
	MethodLogLinear Method = "loglinear"

	// MethodNonlinear minimizes relative residuals with Nelder–Mead, seeded
	// by the log-linear solution.
	MethodNonlinear Method = "nonlinear"

	// MethodMoments uses the closed-form M2/M4/M6 moment estimator.
	MethodMoments Method = "moments"
)

// Options bounds the fit.
type Options struct {
	// MinBins is the minimum number of usable bins. Defaults to 3.
	MinBins int
	// MaxIterations and MaxEvaluations bound the nonlinear optimizer.
	MaxIterations  int
	MaxEvaluations int
}

func (o Options) withDefaults() Options {
	if o.MinBins < 3 {
		o.MinBins = 3
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1000
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = 5000
	}
	return o
}

// NewFitter returns the strategy for method. Unknown methods fall back to nonlinear.
func NewFitter(method Method, opts Options) Fitter {
	opts = opts.withDefaults()

	switch method {
	case MethodLogLinear:
		return &LogLinearFitter{opts: opts}
	case MethodMoments:
		return &MomentFitter{opts: opts}
	case MethodNonlinear:
		return &NonlinearFitter{opts: opts, seed: &LogLinearFitter{opts: opts}}
	default:
		return &NonlinearFitter{opts: opts, seed: &LogLinearFitter{opts: opts}}
	}
}

// observation is one usable bin.
type observation struct {
	d, width, n float64
}

func usable(geom *dsd.BinGeometry, values []float64, mask []bool) []observation {
	var obs []observation
	for i, v := range values {
		if mask[i] || !(v > 0) || math.IsInf(v, 0) {
			continue
		}
		obs = append(obs, observation{d: geom.Center(i), width: geom.Width(i), n: v})
	}
	return obs
}

func failed(reason string) dsd.GammaFit {
	nan := math.NaN()
	return dsd.GammaFit{N0: nan, Mu: nan, Lambda: nan, Residual: nan, Reason: reason}
}

// finish validates the parameters and computes the residual: the RMSE of
// log10 residuals over the fitted bins.
func finish(obs []observation, n0, mu, lambda float64, iterations int) dsd.GammaFit {
	for _, p := range []float64{n0, mu, lambda} {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return failed("non-finite parameters")
		}
	}
	if n0 <= 0 {
		return failed("non-positive intercept")
	}

	sq := make([]float64, len(obs))
	for i, o := range obs {
		m := dsd.GammaPSD(n0, mu, lambda, o.d)
		if !(m > 0) || math.IsInf(m, 0) {
			return failed("model not positive at fitted bins")
		}
		r := math.Log10(o.n) - math.Log10(m)
		sq[i] = r * r
	}

	return dsd.GammaFit{
		N0:         n0,
		Mu:         mu,
		Lambda:     lambda,
		Residual:   math.Sqrt(stat.Mean(sq, nil)),
		Iterations: iterations,
		OK:         true,
	}
}
