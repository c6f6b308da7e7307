package main

import (
	"path/filepath"
	"testing"

	"github.com/chrissnell/disdrometer/internal/scattering"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

func TestConfigs(t *testing.T) {
	cfgs, err := configs("2.8, 9.4", "10", "0,90")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfgs) != 4 {
		t.Fatalf("got %d configurations, expected 4", len(cfgs))
	}
	if cfgs[3].FrequencyHz != 9.4e9 || cfgs[3].ElevationDeg != 90 {
		t.Errorf("unexpected last configuration %+v", cfgs[3])
	}

	tests := []struct {
		name                string
		freqs, temps, elevs string
	}{
		{"empty", "", "10", "0"},
		{"not a number", "x", "10", "0"},
		{"elevation out of range", "2.8", "10", "120"},
	}
	for _, tt := range tests {
		if _, err := configs(tt.freqs, tt.temps, tt.elevs); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestTableFileUsable(t *testing.T) {
	cfgs, err := configs("5.6", "20", "0")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "table.msgpack")
	geom := dsd.ParsivelGeometry()
	if err := scattering.NewRayleighTable(geom, scattering.ShapeOblate, cfgs...).SaveFile(path); err != nil {
		t.Fatal(err)
	}

	table, err := scattering.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for b := 0; b < geom.NumBins(); b++ {
		if _, ok := table.Lookup(cfgs[0], b); !ok {
			t.Fatalf("bin %d missing from saved table", b)
		}
	}
}
