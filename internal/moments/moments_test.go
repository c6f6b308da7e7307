package moments

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

func uniformBins(t *testing.T) *dsd.BinGeometry {
	t.Helper()
	g, err := dsd.NewBinGeometry([]float64{1, 2, 3}, []float64{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func times(n int) []time.Time {
	base := time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func TestStep(t *testing.T) {
	geom := uniformBins(t)
	values := []float64{100, 50, 10}
	mask := []bool{false, false, false}

	b, err := Step(geom, values, mask, nil, nil, []int{6})
	if err != nil {
		t.Fatal(err)
	}

	m3 := 100*1 + 50*8 + 10*27.0
	m4 := 100*1 + 50*16 + 10*81.0
	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"Nt", b.Nt, 160},
		{"W", b.W, math.Pi / 6 * 1e-3 * m3},
		{"Dm", b.Dm, m4 / m3},
		{"Dmax", b.Dmax, 3},
		{"Nw", b.Nw, 256.0 / 6 * math.Pow(m3, 5) / math.Pow(m4, 4)},
		{"M6", b.Moments[6], 100 + 50*64 + 10*729.0},
		{"RR", b.RainRate, 6 * math.Pi * 1e-4 * (dsd.AtlasVelocity(1)*100 + dsd.AtlasVelocity(2)*400 + dsd.AtlasVelocity(3)*270)},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.expected) > 1e-9*math.Abs(tt.expected) {
			t.Errorf("%s = %v, expected %v", tt.name, tt.got, tt.expected)
		}
	}

	// Cumulative M3: 100, 500, 770; half = 385 falls in bin 1 (edges 1.5..2.5).
	wantD0 := 1.5 + (385.0-100)/400
	if math.Abs(b.D0-wantD0) > 1e-12 {
		t.Errorf("D0 = %v, expected %v", b.D0, wantD0)
	}

	dm := m4 / m3
	wantSigma := math.Sqrt((100*1*(1-dm)*(1-dm) + 50*8*(2-dm)*(2-dm) + 10*27*(3-dm)*(3-dm)) / m3)
	if math.Abs(b.SigmaM-wantSigma) > 1e-12 {
		t.Errorf("sigma_m = %v, expected %v", b.SigmaM, wantSigma)
	}
}

func TestStepUsesMeasuredVelocity(t *testing.T) {
	geom := uniformBins(t)
	values := []float64{100, 0, 0}
	mask := []bool{false, true, true}

	b, err := Step(geom, values, mask, []float64{2, 0, 0}, []bool{false, true, true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := 6 * math.Pi * 1e-4 * 2 * 100
	if math.Abs(b.RainRate-want) > 1e-12 {
		t.Errorf("RR = %v, expected %v", b.RainRate, want)
	}
}

func TestStepAllMasked(t *testing.T) {
	geom := uniformBins(t)
	b, err := Step(geom, []float64{0, 0, 0}, []bool{true, true, true}, nil, nil, []int{2})
	if err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]float64{"Nt": b.Nt, "W": b.W, "Dm": b.Dm, "D0": b.D0, "Nw": b.Nw, "M2": b.Moments[2]} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %v, expected NaN", name, v)
		}
	}
}

func TestStepOverflow(t *testing.T) {
	geom := uniformBins(t)
	_, err := Step(geom, []float64{math.MaxFloat64, math.MaxFloat64, 1}, []bool{false, false, false}, nil, nil, nil)
	if err == nil {
		t.Fatal("expected overflow to surface as a step failure")
	}
}

func TestStepExtraOrderOverflow(t *testing.T) {
	geom := uniformBins(t)
	values := []float64{0, 0, 1e303}
	mask := []bool{false, false, false}

	// M0 through M4 stay finite; 3^12·1e303 does not.
	if _, err := Step(geom, values, mask, nil, nil, []int{6}); err != nil {
		t.Fatalf("M6 should be finite: %v", err)
	}
	if _, err := Step(geom, values, mask, nil, nil, []int{6, 12}); err == nil {
		t.Fatal("expected an overflowing M12 to fail the step")
	}
}

func TestCalculate(t *testing.T) {
	geom := uniformBins(t)
	d, err := dsd.New(geom, times(3), nil)
	if err != nil {
		t.Fatal(err)
	}

	nd := dsd.NewFieldSeries(dsd.FieldNd, dsd.UnitsConcentration, "", 3, 3)
	for b, v := range []float64{100, 50, 10} {
		nd.Set(0, b, v)
	}
	// step 1 stays fully masked
	nd.Set(2, 0, math.MaxFloat64)
	nd.Set(2, 1, math.MaxFloat64)
	if err := d.AddField(nd); err != nil {
		t.Fatal(err)
	}

	c := NewCalculator(Options{Workers: 2, ExtraOrders: []int{0, 6}}, nil, observability.NewMetricsForTesting())
	if err := c.Calculate(context.Background(), d); err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	for _, name := range []string{dsd.FieldNt, dsd.FieldW, dsd.FieldDm, dsd.FieldD0, dsd.FieldDmax, dsd.FieldNw, dsd.FieldSigmaM, dsd.FieldRainRateDSD, "M0", "M6"} {
		f, ok := d.Field(name)
		if !ok {
			t.Fatalf("field %s not appended", name)
		}
		if _, ok := f.At(0, 0); !ok {
			t.Errorf("%s masked at step 0", name)
		}
		if _, ok := f.At(1, 0); ok {
			t.Errorf("%s should be masked for an all-masked step", name)
		}
		if _, ok := f.At(2, 0); ok {
			t.Errorf("%s should be masked for an overflowing step", name)
		}
	}

	if nt, _ := d.Field(dsd.FieldNt); nt.Data[0] != 160 {
		t.Errorf("Nt[0] = %v", nt.Data[0])
	}

	if err := c.Calculate(context.Background(), d); err == nil {
		t.Errorf("second Calculate should refuse to overwrite fields")
	}
}

func TestCalculateRequiresNd(t *testing.T) {
	d, err := dsd.New(uniformBins(t), times(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewCalculator(Options{}, nil, nil).Calculate(context.Background(), d); err == nil {
		t.Fatal("expected missing field error")
	}
}
