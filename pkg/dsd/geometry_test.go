package dsd

import (
	"errors"
	"math"
	"testing"
)

func TestNewBinGeometry(t *testing.T) {
	tests := []struct {
		name    string
		centers []float64
		spread  []float64
		wantErr bool
	}{
		{
			name:    "uniform bins",
			centers: []float64{0.5, 1.5, 2.5},
			spread:  []float64{1, 1, 1},
		},
		{
			name:    "single bin",
			centers: []float64{1.0},
			spread:  []float64{0.5},
		},
		{
			name:    "no bins",
			centers: []float64{},
			spread:  []float64{},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			centers: []float64{0.5, 1.5},
			spread:  []float64{1},
			wantErr: true,
		},
		{
			name:    "zero spread",
			centers: []float64{0.5, 1.5},
			spread:  []float64{1, 0},
			wantErr: true,
		},
		{
			name:    "negative spread",
			centers: []float64{0.5, 1.5},
			spread:  []float64{-1, 1},
			wantErr: true,
		},
		{
			name:    "centers not increasing",
			centers: []float64{1.5, 1.5},
			spread:  []float64{1, 1},
			wantErr: true,
		},
		{
			name:    "NaN center",
			centers: []float64{math.NaN(), 1.5},
			spread:  []float64{1, 1},
			wantErr: true,
		},
		{
			name:    "spread overlapping previous edge",
			centers: []float64{1.0, 1.1},
			spread:  []float64{1.0, 0.1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewBinGeometry(tt.centers, tt.spread)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got geometry with %d bins", g.NumBins())
				}
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Errorf("error %v does not wrap ErrInvalidGeometry", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			edges := g.Edges()
			if len(edges) != len(tt.centers)+1 {
				t.Fatalf("expected %d edges, got %d", len(tt.centers)+1, len(edges))
			}
			if edges[0] != 0 {
				t.Errorf("edges[0] = %v, expected 0", edges[0])
			}
			for i := range tt.centers {
				if edges[i+1] <= edges[i] {
					t.Errorf("edges not strictly increasing at %d: %v <= %v", i+1, edges[i+1], edges[i])
				}
				if got := edges[i+1] - tt.centers[i]; math.Abs(got-tt.spread[i]/2) > 1e-12 {
					t.Errorf("edge %d offset = %v, expected %v", i+1, got, tt.spread[i]/2)
				}
			}
		})
	}
}

func TestBinGeometryDeterministic(t *testing.T) {
	centers := []float64{0.0625, 0.1875, 0.3125, 1.375, 2.75}
	spread := []float64{0.125, 0.125, 0.125, 0.25, 0.5}

	a, err := NewBinGeometry(centers, spread)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBinGeometry(centers, spread)
	if err != nil {
		t.Fatal(err)
	}

	ea, eb := a.Edges(), b.Edges()
	for i := range ea {
		if math.Float64bits(ea[i]) != math.Float64bits(eb[i]) {
			t.Errorf("edge %d differs: %v vs %v", i, ea[i], eb[i])
		}
	}
}

func TestBinGeometryIsImmutable(t *testing.T) {
	centers := []float64{0.5, 1.5}
	g, err := NewBinGeometry(centers, []float64{1, 1})
	if err != nil {
		t.Fatal(err)
	}

	centers[0] = 99
	g.Centers()[1] = 99
	g.Edges()[0] = 99

	if g.Center(0) != 0.5 || g.Center(1) != 1.5 || g.Edges()[0] != 0 {
		t.Errorf("geometry changed through caller slices: centers=%v edges=%v", g.Centers(), g.Edges())
	}
}

func TestParsivelGeometry(t *testing.T) {
	g := ParsivelGeometry()
	if g.NumBins() != 32 {
		t.Fatalf("expected 32 bins, got %d", g.NumBins())
	}
	edges := g.Edges()
	if edges[len(edges)-1] != 26.0 {
		t.Errorf("last edge = %v, expected 26", edges[len(edges)-1])
	}
	if len(ParsivelVelocityClasses()) != 32 {
		t.Errorf("expected 32 velocity classes")
	}
}

func TestBinIndex(t *testing.T) {
	g, err := NewBinGeometry([]float64{0.5, 1.5, 2.5}, []float64{1, 1, 1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		d    float64
		want int
	}{
		{0, -1},
		{0.3, 0},
		{1.0, 0},
		{1.2, 1},
		{3.0, 2},
		{3.1, -1},
	}
	for _, tt := range tests {
		if got := g.BinIndex(tt.d); got != tt.want {
			t.Errorf("BinIndex(%v) = %d, expected %d", tt.d, got, tt.want)
		}
	}
}
