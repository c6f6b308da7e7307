package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// NonlinearFitter minimizes Σ((N_obs − N_mod)/N_obs)^2 over (ln N0, μ, Λ)
// with Nelder–Mead. The relative form keeps the large small-drop
// concentrations from dominating the few large drops.
type NonlinearFitter struct {
	opts Options
	seed *LogLinearFitter
}

// Fit implements Fitter.
func (f *NonlinearFitter) Fit(geom *dsd.BinGeometry, values []float64, mask []bool) dsd.GammaFit {
	obs := usable(geom, values, mask)
	if len(obs) < f.opts.MinBins {
		return failed(fmt.Sprintf("%d usable bins, need %d", len(obs), f.opts.MinBins))
	}

	init := []float64{0, 0, 1}
	if n0, mu, lambda, err := solveLogLinear(obs); err == nil && n0 > 0 && !math.IsInf(n0, 0) && !math.IsNaN(mu+lambda) {
		init = []float64{math.Log(n0), mu, lambda}
	} else {
		maxN := 0.0
		for _, o := range obs {
			maxN = math.Max(maxN, o.n)
		}
		init[0] = math.Log(maxN)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sum := 0.0
			for _, o := range obs {
				m := math.Exp(x[0]) * math.Pow(o.d, x[1]) * math.Exp(-x[2]*o.d)
				r := (o.n - m) / o.n
				sum += r * r
			}
			if math.IsNaN(sum) {
				return math.Inf(1)
			}
			return sum
		},
	}
	settings := &optimize.Settings{
		MajorIterations: f.opts.MaxIterations,
		FuncEvaluations: f.opts.MaxEvaluations,
	}

	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if err != nil {
		return failed(fmt.Sprintf("optimizer: %v", err))
	}

	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		fit := failed(fmt.Sprintf("did not converge: %v", result.Status))
		fit.Iterations = result.Stats.MajorIterations
		return fit
	}

	x := result.X
	return finish(obs, math.Exp(x[0]), x[1], x[2], result.Stats.MajorIterations)
}
