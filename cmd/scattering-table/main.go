// Package main precomputes Rayleigh-Gans scattering amplitude tables for the
// Parsivel² bin geometry and writes them as msgpack table files for
// dsdprocess (scattering.table).
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/disdrometer/internal/scattering"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

func main() {
	freqs := flag.String("frequencies", "2.8,5.6,9.4", "Comma-separated frequencies in GHz")
	temps := flag.String("temperatures", "0,10,20", "Comma-separated temperatures in deg C")
	elevs := flag.String("elevations", "0,90", "Comma-separated elevation angles in degrees")
	shape := flag.String("shape", "oblate", "Drop shape model: oblate or sphere")
	out := flag.String("out", "scattering-table.msgpack", "Output table file")
	inspect := flag.String("inspect", "", "Print the configurations stored in an existing table file and exit")
	flag.Parse()

	if *inspect != "" {
		table, err := scattering.LoadFile(*inspect)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading table: %v\n", err)
			os.Exit(1)
		}
		for _, k := range table.Keys() {
			fmt.Println(k)
		}
		return
	}

	cfgs, err := configs(*freqs, *temps, *elevs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	switch scattering.Shape(*shape) {
	case scattering.ShapeOblate, scattering.ShapeSphere:
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown shape %q\n", *shape)
		os.Exit(1)
	}

	table := scattering.NewRayleighTable(dsd.ParsivelGeometry(), scattering.Shape(*shape), cfgs...)
	if err := table.SaveFile(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing table: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d configurations to %s\n", len(cfgs), *out)
}

// configs returns every combination of the listed frequencies, temperatures
// and elevations.
func configs(freqs, temps, elevs string) ([]scattering.Config, error) {
	fs, err := parseList(freqs)
	if err != nil {
		return nil, fmt.Errorf("frequencies: %w", err)
	}
	ts, err := parseList(temps)
	if err != nil {
		return nil, fmt.Errorf("temperatures: %w", err)
	}
	es, err := parseList(elevs)
	if err != nil {
		return nil, fmt.Errorf("elevations: %w", err)
	}

	var out []scattering.Config
	for _, f := range fs {
		for _, t := range ts {
			for _, e := range es {
				cfg := scattering.Config{FrequencyHz: f * 1e9, TemperatureC: t, ElevationDeg: e}
				if err := cfg.Validate(); err != nil {
					return nil, err
				}
				out = append(out, cfg)
			}
		}
	}
	return out, nil
}

func parseList(s string) ([]float64, error) {
	var out []float64
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	return out, nil
}
