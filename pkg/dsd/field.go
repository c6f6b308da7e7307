package dsd

import (
	"fmt"
	"math"
)

// Units used across the engine.
const (
	UnitsConcentration = "1/m^3 1/mm"
	UnitsMM            = "mm"
	UnitsPerMM         = "1/mm"
	UnitsPerM3         = "1/m^3"
	UnitsGramsPerM3    = "g/m^3"
	UnitsMMPerHour     = "mm/h"
	UnitsMetersPerSec  = "m/s"
	UnitsDBZ           = "dBZ"
	UnitsDB            = "dB"
	UnitsDegPerKM      = "deg/km"
	UnitsDBPerKM       = "dB/km"
	UnitsDegrees       = "deg"
	UnitsCount         = "#"
	UnitsNone          = "unitless"
)

// DefaultFillValue marks missing values when a series is filled for output.
const DefaultFillValue = -9999.0

// FieldSeries is a named physical quantity over the time axis, optionally
// resolved per diameter bin. Data is time-major: index t*NumBins+b. Mask[i]
// true means the value is missing; FillValue travels with the mask.
type FieldSeries struct {
	Name        string
	Units       string
	Description string
	NumTime     int
	NumBins     int // 0 for a time-only series
	Data        []float64
	Mask        []bool
	FillValue   float64
}

// NewFieldSeries allocates a fully masked series.
func NewFieldSeries(name, units, description string, numTime, numBins int) *FieldSeries {
	n := numTime
	if numBins > 0 {
		n = numTime * numBins
	}
	f := &FieldSeries{
		Name:        name,
		Units:       units,
		Description: description,
		NumTime:     numTime,
		NumBins:     numBins,
		Data:        make([]float64, n),
		Mask:        make([]bool, n),
		FillValue:   DefaultFillValue,
	}
	for i := range f.Mask {
		f.Mask[i] = true
	}
	return f
}

// Len returns the number of stored values.
func (f *FieldSeries) Len() int { return len(f.Data) }

// IsSpectral reports whether the series has a bin dimension.
func (f *FieldSeries) IsSpectral() bool { return f.NumBins > 0 }

func (f *FieldSeries) index(t, b int) int {
	if f.NumBins == 0 {
		return t
	}
	return t*f.NumBins + b
}

// At returns the value at (t, b) and whether it is valid. For a time-only
// series b is ignored.
func (f *FieldSeries) At(t, b int) (float64, bool) {
	i := f.index(t, b)
	if f.Mask[i] {
		return f.FillValue, false
	}
	return f.Data[i], true
}

// Set stores a valid value. NaN and infinities are stored as masked so they
// can never leak as literal values downstream.
func (f *FieldSeries) Set(t, b int, v float64) {
	i := f.index(t, b)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		f.Data[i] = 0
		f.Mask[i] = true
		return
	}
	f.Data[i] = v
	f.Mask[i] = false
}

// SetMissing masks the value at (t, b).
func (f *FieldSeries) SetMissing(t, b int) {
	i := f.index(t, b)
	f.Data[i] = 0
	f.Mask[i] = true
}

// Row returns the values and validity of time step t. The slices alias the
// series storage and must not be modified.
func (f *FieldSeries) Row(t int) ([]float64, []bool) {
	if f.NumBins == 0 {
		return f.Data[t : t+1], f.Mask[t : t+1]
	}
	lo := t * f.NumBins
	return f.Data[lo : lo+f.NumBins], f.Mask[lo : lo+f.NumBins]
}

// Filled returns a copy of the data with masked entries replaced by FillValue.
func (f *FieldSeries) Filled() []float64 {
	out := make([]float64, len(f.Data))
	for i, v := range f.Data {
		if f.Mask[i] {
			out[i] = f.FillValue
		} else {
			out[i] = v
		}
	}
	return out
}

// ValidCount returns the number of unmasked values.
func (f *FieldSeries) ValidCount() int {
	n := 0
	for _, m := range f.Mask {
		if !m {
			n++
		}
	}
	return n
}

// Validate checks the internal shape invariants.
func (f *FieldSeries) Validate() error {
	want := f.NumTime
	if f.NumBins > 0 {
		want = f.NumTime * f.NumBins
	}
	if len(f.Data) != want || len(f.Mask) != want {
		return fmt.Errorf("field %q: expected %d values, have %d data / %d mask", f.Name, want, len(f.Data), len(f.Mask))
	}
	return nil
}

// LabelSeries is a per-time text channel, such as a precipitation type code.
// An empty string with Valid false is missing.
type LabelSeries struct {
	Name        string
	Description string
	Values      []string
	Valid       []bool
}

// At returns the label at t and whether it is present.
func (l *LabelSeries) At(t int) (string, bool) {
	if t < 0 || t >= len(l.Values) || !l.Valid[t] {
		return "", false
	}
	return l.Values[t], true
}
