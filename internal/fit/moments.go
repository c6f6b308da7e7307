package fit

import (
	"fmt"
	"math"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// MomentFitter estimates the gamma parameters from M2, M4 and M6 with the
// η = M4²/(M2·M6) estimator (Ulbrich 1983, Vivekanandan et al. 2004).
type MomentFitter struct {
	opts Options
}

// Fit implements Fitter.
func (f *MomentFitter) Fit(geom *dsd.BinGeometry, values []float64, mask []bool) dsd.GammaFit {
	obs := usable(geom, values, mask)
	if len(obs) < f.opts.MinBins {
		return failed(fmt.Sprintf("%d usable bins, need %d", len(obs), f.opts.MinBins))
	}

	var m2, m4, m6 float64
	for _, o := range obs {
		d2 := o.d * o.d
		m2 += o.n * d2 * o.width
		m4 += o.n * d2 * d2 * o.width
		m6 += o.n * d2 * d2 * d2 * o.width
	}

	eta := m4 * m4 / (m2 * m6)
	if !(eta > 0 && eta < 1) {
		return failed(fmt.Sprintf("moment ratio %v outside (0, 1)", eta))
	}

	a := 7 - 11*eta
	disc := a*a - 4*(eta-1)*(30*eta-12)
	if disc < 0 {
		return failed("no real shape solution")
	}
	mu := (a - math.Sqrt(disc)) / (2 * (eta - 1))
	if !(mu > -3) {
		return failed(fmt.Sprintf("shape %v out of range", mu))
	}

	lambda := math.Sqrt((4 + mu) * (3 + mu) * m2 / m4)

	// M2 = N0·Γ(μ+3)/Λ^(μ+3); evaluated in log space.
	lg, _ := math.Lgamma(mu + 3)
	n0 := math.Exp(math.Log(m2) + (mu+3)*math.Log(lambda) - lg)

	return finish(obs, n0, mu, lambda, 0)
}
