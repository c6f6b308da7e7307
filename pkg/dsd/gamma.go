package dsd

import "math"

// GammaFit is the outcome of fitting N(D) = N0 * D^Mu * exp(-Lambda*D) to
// one time step. When OK is false the parameters are meaningless and Reason
// says why the fit was not produced.
type GammaFit struct {
	N0         float64 // 1/m^3 1/mm^(1+mu)
	Mu         float64
	Lambda     float64 // 1/mm
	Residual   float64 // RMSE of log10 residuals over fitted bins
	Iterations int
	OK         bool
	Reason     string
}

// Eval returns the model concentration at diameter d (mm).
func (g GammaFit) Eval(d float64) float64 {
	return GammaPSD(g.N0, g.Mu, g.Lambda, d)
}

// FittedModelParameters holds one GammaFit per time step, in time order.
type FittedModelParameters struct {
	Method string
	Steps  []GammaFit
}

// Succeeded returns the number of time steps with a usable fit.
func (p *FittedModelParameters) Succeeded() int {
	n := 0
	for _, s := range p.Steps {
		if s.OK {
			n++
		}
	}
	return n
}

// GammaPSD evaluates N0 * D^mu * exp(-lambda*D).
func GammaPSD(n0, mu, lambda, d float64) float64 {
	if d <= 0 {
		return 0
	}
	return n0 * math.Pow(d, mu) * math.Exp(-lambda*d)
}
