package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// LogLinearFitter solves ln N = a + μ·ln D − Λ·D with a QR least-squares solve.
type LogLinearFitter struct {
	opts Options
}

// Fit implements Fitter.
func (f *LogLinearFitter) Fit(geom *dsd.BinGeometry, values []float64, mask []bool) dsd.GammaFit {
	obs := usable(geom, values, mask)
	if len(obs) < f.opts.MinBins {
		return failed(fmt.Sprintf("%d usable bins, need %d", len(obs), f.opts.MinBins))
	}

	n0, mu, lambda, err := solveLogLinear(obs)
	if err != nil {
		return failed(err.Error())
	}
	return finish(obs, n0, mu, lambda, 0)
}

func solveLogLinear(obs []observation) (n0, mu, lambda float64, err error) {
	n := len(obs)

	X := mat.NewDense(n, 3, nil)
	y := mat.NewVecDense(n, nil)
	for i, o := range obs {
		X.Set(i, 0, 1)
		X.Set(i, 1, math.Log(o.d))
		X.Set(i, 2, -o.d)
		y.SetVec(i, math.Log(o.n))
	}

	var qr mat.QR
	qr.Factorize(X)

	coeffs := mat.NewVecDense(3, nil)
	if err := qr.SolveVecTo(coeffs, false, y); err != nil {
		return 0, 0, 0, fmt.Errorf("log-linear solve: %w", err)
	}

	return math.Exp(coeffs.AtVec(0)), coeffs.AtVec(1), coeffs.AtVec(2), nil
}
