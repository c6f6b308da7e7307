// Package scattering integrates drop size distributions against per-bin
// scattering amplitudes to produce radar-equivalent parameters.
package scattering

import (
	"fmt"
	"math"
)

// speedOfLight in mm/s.
const speedOfLight = 299792458e3

// Common radar bands.
const (
	SBand  = 2.8e9
	CBand  = 5.6e9
	XBand  = 9.4e9
	KuBand = 13.6e9
	KaBand = 35.6e9
	WBand  = 94e9
)

// DefaultKwSquared is the conventional |Kw|^2 for liquid water used in
// reflectivity calibration.
const DefaultKwSquared = 0.93

// DefaultDBFloor replaces the logarithm of a non-positive linear quantity.
const DefaultDBFloor = -99.0

// Pathway selects which concentration is integrated.
type Pathway string

const (
	// PathwayMeasured integrates the normalized Nd field.
	PathwayMeasured Pathway = "measured"
	// PathwayFitted integrates the gamma model at the bin centers.
	PathwayFitted Pathway = "fitted"
)

// Config is one scattering configuration. Frequency, temperature and
// elevation identify table entries; the rest only affect the integration.
type Config struct {
	FrequencyHz  float64
	TemperatureC float64
	ElevationDeg float64

	KwSquared float64  // defaults to DefaultKwSquared
	DBFloor   *float64 // nil selects DefaultDBFloor; zero is a valid floor
	// Constant overrides the reflectivity constant λ^4/(π^5|Kw|^2) when > 0.
	Constant float64
	Pathway  Pathway // defaults to PathwayMeasured
}

// WithDefaults returns c with unset optional values filled in.
func (c Config) WithDefaults() Config {
	if c.KwSquared == 0 {
		c.KwSquared = DefaultKwSquared
	}
	if c.DBFloor == nil {
		floor := DefaultDBFloor
		c.DBFloor = &floor
	}
	if c.Pathway == "" {
		c.Pathway = PathwayMeasured
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.FrequencyHz > 0) || math.IsInf(c.FrequencyHz, 0) {
		return fmt.Errorf("scattering frequency must be positive, got %v", c.FrequencyHz)
	}
	if c.TemperatureC < -40 || c.TemperatureC > 60 {
		return fmt.Errorf("scattering temperature %v C out of range", c.TemperatureC)
	}
	if c.ElevationDeg < 0 || c.ElevationDeg > 90 {
		return fmt.Errorf("elevation %v deg out of range", c.ElevationDeg)
	}
	switch c.Pathway {
	case "", PathwayMeasured, PathwayFitted:
	default:
		return fmt.Errorf("unknown scattering pathway %q", c.Pathway)
	}
	return nil
}

// Wavelength returns the radar wavelength in mm.
func (c Config) Wavelength() float64 {
	return speedOfLight / c.FrequencyHz
}

// ReflectivityConstant returns λ^4/(π^5·|Kw|^2) in mm^4, or the override.
func (c Config) ReflectivityConstant() float64 {
	if c.Constant > 0 {
		return c.Constant
	}
	kw := c.KwSquared
	if kw == 0 {
		kw = DefaultKwSquared
	}
	return math.Pow(c.Wavelength(), 4) / (math.Pow(math.Pi, 5) * kw)
}

// Floor returns the decibel value used for non-positive linear quantities.
func (c Config) Floor() float64 {
	if c.DBFloor == nil {
		return DefaultDBFloor
	}
	return *c.DBFloor
}

// FrequencyGHz returns the frequency in GHz.
func (c Config) FrequencyGHz() float64 { return c.FrequencyHz / 1e9 }

// Key identifies the table entries valid for this configuration. Frequency
// is quantized to 1 MHz, temperature and elevation to 0.01.
func (c Config) Key() string {
	return fmt.Sprintf("%gGHz/%gC/el%g",
		quantize(c.FrequencyGHz(), 1e3), quantize(c.TemperatureC, 100), quantize(c.ElevationDeg, 100))
}

// quantize rounds x to the nearest 1/scale and never returns negative zero.
func quantize(x, scale float64) float64 {
	q := math.Round(x*scale) / scale
	if q == 0 {
		return 0
	}
	return q
}
