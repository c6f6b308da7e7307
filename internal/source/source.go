// Package source defines the contract raw disdrometer spectrum sources
// satisfy. Adapters for individual instruments and file formats live in
// subpackages and all normalize into RawField values.
package source

import (
	"fmt"
	"time"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// AxisOrder is the storage order of a 2-D (time, bin) field.
type AxisOrder int

const (
	// TimeMajor stores index t*nbins + b.
	TimeMajor AxisOrder = iota
	// BinMajor stores index b*ntime + t, as instruments that write one
	// variable per diameter class do.
	BinMajor
)

func (o AxisOrder) String() string {
	switch o {
	case TimeMajor:
		return "time-major"
	case BinMajor:
		return "bin-major"
	default:
		return fmt.Sprintf("AxisOrder(%d)", int(o))
	}
}

// Encoding describes how a raw spectrum value relates to concentration.
type Encoding string

const (
	// EncodingLog10 values are log10 of concentration in 1/m^3 1/mm.
	EncodingLog10 Encoding = "log10"
	// EncodingLinear values are concentration in 1/m^3 1/mm.
	EncodingLinear Encoding = "linear"
	// EncodingCounts values are particle counts per sampling interval.
	EncodingCounts Encoding = "counts"
	// EncodingPlain is any non-spectral channel.
	EncodingPlain Encoding = ""
)

// RawField is one channel as delivered by a source, before normalization.
//
// Shape lists dimension lengths in storage order. Time-only channels have
// Shape [ntime]. Spectral channels have Shape [ntime, nbins] (TimeMajor) or
// [nbins, ntime] (BinMajor). Count matrices resolved by velocity class have
// Shape [ntime, nbins, nvel] and are always time-major.
type RawField struct {
	Name        string
	Units       string
	Description string
	Encoding    Encoding
	Order       AxisOrder
	Shape       []int
	Data        []float64

	// FillValue marks missing entries in Data when HasFill is set.
	FillValue float64
	HasFill   bool
	// Mask, when non-nil, marks missing entries explicitly and takes
	// precedence over FillValue.
	Mask []bool
}

// Missing reports whether element i is flagged missing by the mask or the fill value.
func (f RawField) Missing(i int) bool {
	if f.Mask != nil {
		return f.Mask[i]
	}
	return f.HasFill && f.Data[i] == f.FillValue
}

// Validate checks that Shape and Data agree.
func (f RawField) Validate() error {
	if len(f.Shape) == 0 {
		return fmt.Errorf("raw field %q has no shape", f.Name)
	}
	n := 1
	for _, s := range f.Shape {
		if s < 0 {
			return fmt.Errorf("raw field %q has negative dimension", f.Name)
		}
		n *= s
	}
	if len(f.Data) != n {
		return fmt.Errorf("raw field %q: shape %v needs %d values, have %d", f.Name, f.Shape, n, len(f.Data))
	}
	if f.Mask != nil && len(f.Mask) != n {
		return fmt.Errorf("raw field %q: mask has %d entries, expected %d", f.Name, len(f.Mask), n)
	}
	return nil
}

// Source is a normalized ingestion interface implemented by every raw
// spectrum adapter.
type Source interface {
	// Name identifies the adapter and input, for logs and errors.
	Name() string
	// Capabilities advertises the channel classes the source carries.
	Capabilities() Capabilities
	// Supplies reports whether Field(name) or Labels(name) will succeed.
	Supplies(field string) bool
	// Time returns the epoch of each observation in order.
	Time() []time.Time
	// Geometry returns the diameter bin geometry, or an error wrapping
	// dsd.ErrInvalidGeometry when the advertised bins are malformed.
	Geometry() (*dsd.BinGeometry, error)
	// Field returns a numeric channel or a *dsd.MissingFieldError.
	Field(name string) (RawField, error)
	// Labels returns a text channel or a *dsd.MissingFieldError.
	Labels(name string) (*dsd.LabelSeries, error)
	// Info returns station and instrument metadata.
	Info() map[string]string
}
