package fit

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

func gammaRow(geom *dsd.BinGeometry, n0, mu, lambda float64) ([]float64, []bool) {
	values := make([]float64, geom.NumBins())
	mask := make([]bool, geom.NumBins())
	for i := range values {
		values[i] = dsd.GammaPSD(n0, mu, lambda, geom.Center(i))
	}
	return values, mask
}

func fineGeometry(t *testing.T) *dsd.BinGeometry {
	t.Helper()
	centers := make([]float64, 1000)
	spread := make([]float64, 1000)
	for i := range centers {
		centers[i] = 0.005 + 0.01*float64(i)
		spread[i] = 0.01
	}
	g, err := dsd.NewBinGeometry(centers, spread)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Abs(want)
}

func TestRecoverNoiselessGamma(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	values, mask := gammaRow(geom, 8000, 2, 3)

	for _, method := range []Method{MethodLogLinear, MethodNonlinear} {
		t.Run(string(method), func(t *testing.T) {
			g := NewFitter(method, Options{}).Fit(geom, values, mask)
			if !g.OK {
				t.Fatalf("fit failed: %s", g.Reason)
			}
			if relErr(g.N0, 8000) > 1e-3 || relErr(g.Mu, 2) > 1e-3 || relErr(g.Lambda, 3) > 1e-3 {
				t.Errorf("recovered N0=%v mu=%v Lambda=%v", g.N0, g.Mu, g.Lambda)
			}
			if g.Residual > 1e-6 {
				t.Errorf("residual = %v, expected ~0", g.Residual)
			}
		})
	}
}

func TestMomentEstimator(t *testing.T) {
	geom := fineGeometry(t)
	values, mask := gammaRow(geom, 8000, 2, 3)

	g := NewFitter(MethodMoments, Options{}).Fit(geom, values, mask)
	if !g.OK {
		t.Fatalf("fit failed: %s", g.Reason)
	}
	if relErr(g.Mu, 2) > 0.02 || relErr(g.Lambda, 3) > 0.02 || relErr(g.N0, 8000) > 0.05 {
		t.Errorf("recovered N0=%v mu=%v Lambda=%v", g.N0, g.Mu, g.Lambda)
	}
}

func TestTooFewBins(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	values, mask := gammaRow(geom, 8000, 2, 3)
	for i := range mask {
		mask[i] = i != 5 && i != 6
	}

	for _, method := range []Method{MethodLogLinear, MethodNonlinear, MethodMoments} {
		g := NewFitter(method, Options{}).Fit(geom, values, mask)
		if g.OK {
			t.Errorf("%s: expected failure with two bins", method)
		}
		if g.Reason == "" {
			t.Errorf("%s: failure without a reason", method)
		}
		if !math.IsNaN(g.N0) {
			t.Errorf("%s: failed fit should carry NaN parameters", method)
		}
	}
}

func TestIterationBudget(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	values, mask := gammaRow(geom, 8000, 2, 3)
	// Perturb so the seed is not already optimal.
	for i := range values {
		values[i] *= 1 + 0.3*math.Sin(float64(i))
	}

	g := NewFitter(MethodNonlinear, Options{MaxIterations: 1}).Fit(geom, values, mask)
	if g.OK {
		t.Fatalf("expected non-convergence with a one-iteration budget")
	}
}

func TestFitDeterministic(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	values, mask := gammaRow(geom, 5000, 1, 2.5)
	for i := range values {
		values[i] *= 1 + 0.1*math.Cos(float64(3*i))
	}

	f := NewFitter(MethodNonlinear, Options{})
	a := f.Fit(geom, values, mask)
	b := f.Fit(geom, values, mask)
	if math.Float64bits(a.N0) != math.Float64bits(b.N0) ||
		math.Float64bits(a.Mu) != math.Float64bits(b.Mu) ||
		math.Float64bits(a.Lambda) != math.Float64bits(b.Lambda) {
		t.Errorf("fits differ: %+v vs %+v", a, b)
	}
}

func TestCalculatorSoftFailures(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	base := time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}

	d, err := dsd.New(geom, times, nil)
	if err != nil {
		t.Fatal(err)
	}
	nd := dsd.NewFieldSeries(dsd.FieldNd, dsd.UnitsConcentration, "", 3, geom.NumBins())
	values, _ := gammaRow(geom, 8000, 2, 3)
	for b, v := range values {
		nd.Set(0, b, v)
		nd.Set(2, b, v)
	}
	// step 1 has a single bin
	nd.Set(1, 4, 100)
	if err := d.AddField(nd); err != nil {
		t.Fatal(err)
	}

	c := NewCalculator(MethodNonlinear, Options{}, 3, nil, observability.NewMetricsForTesting())
	if err := c.Calculate(context.Background(), d); err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	if d.Fit == nil || len(d.Fit.Steps) != 3 {
		t.Fatalf("fit parameters not attached")
	}
	if d.Fit.Succeeded() != 2 {
		t.Errorf("succeeded = %d, expected 2", d.Fit.Succeeded())
	}

	mu, ok := d.Field(dsd.FieldMu)
	if !ok {
		t.Fatal("mu not appended")
	}
	if _, ok := mu.At(1, 0); ok {
		t.Errorf("failed step should be masked")
	}
	for _, step := range []int{0, 2} {
		if v, ok := mu.At(step, 0); !ok || relErr(v, 2) > 1e-3 {
			t.Errorf("mu[%d] = %v (%v)", step, v, ok)
		}
	}

	if err := c.Calculate(context.Background(), d); err == nil {
		t.Errorf("refitting an already fitted dataset should fail")
	}
}

// fixedFitter returns the same parameters for every step.
type fixedFitter struct{ g dsd.GammaFit }

func (f fixedFitter) Fit(*dsd.BinGeometry, []float64, []bool) dsd.GammaFit { return f.g }

func TestCalculatorSetFitter(t *testing.T) {
	geom := dsd.ParsivelGeometry()
	base := time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)
	values, _ := gammaRow(geom, 8000, 2, 3)

	newDataset := func() *dsd.DropSizeDistribution {
		d, err := dsd.New(geom, []time.Time{base}, nil)
		if err != nil {
			t.Fatal(err)
		}
		nd := dsd.NewFieldSeries(dsd.FieldNd, dsd.UnitsConcentration, "", 1, geom.NumBins())
		for b, v := range values {
			nd.Set(0, b, v)
		}
		if err := d.AddField(nd); err != nil {
			t.Fatal(err)
		}
		return d
	}

	c := NewCalculator(MethodLogLinear, Options{}, 1, nil, nil)

	tests := []struct {
		name   string
		method Method
		fitter Fitter
		wantMu float64
	}{
		{"loglinear", MethodLogLinear, NewFitter(MethodLogLinear, Options{}), 2},
		{"nonlinear", MethodNonlinear, NewFitter(MethodNonlinear, Options{}), 2},
		{"custom", "fixed", fixedFitter{dsd.GammaFit{N0: 1, Mu: 7, Lambda: 1, OK: true}}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.SetFitter(tt.method, tt.fitter)
			d := newDataset()
			if err := c.Calculate(context.Background(), d); err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if d.Fit.Method != string(tt.method) {
				t.Errorf("method = %s, expected %s", d.Fit.Method, tt.method)
			}
			if mu := d.Fit.Steps[0].Mu; relErr(mu, tt.wantMu) > 1e-3 {
				t.Errorf("mu = %v, expected %v", mu, tt.wantMu)
			}
		})
	}
}
