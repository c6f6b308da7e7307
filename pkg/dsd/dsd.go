// Package dsd holds the drop size distribution data model: the bin geometry,
// masked field series and the DropSizeDistribution aggregate that calculator
// stages enrich in place.
package dsd

import (
	"fmt"
	"sort"
	"time"
)

// Field names used by sources, calculators and the exporter.
const (
	FieldNd               = "Nd"
	FieldRainRate         = "RR"
	FieldRainRateARM      = "rain_rate"
	FieldReflectivity     = "reflectivity"
	FieldNumParticles     = "num_particles"
	FieldTerminalVelocity = "terminal_velocity"
	FieldVelocity         = "velocity"
	FieldPrecipCode       = "Precip_Code"

	// Moments and bulk parameters.
	FieldNt          = "Nt"
	FieldW           = "W"
	FieldDm          = "Dm"
	FieldD0          = "D0"
	FieldDmax        = "Dmax"
	FieldNw          = "Nw"
	FieldSigmaM      = "sigma_m"
	FieldRainRateDSD = "rain_rate_dsd"

	// Gamma fit.
	FieldN0          = "N0"
	FieldMu          = "mu"
	FieldLambda      = "Lambda"
	FieldFitResidual = "fit_residual"

	// Radar parameters.
	FieldZh      = "Zh"
	FieldZv      = "Zv"
	FieldZdr     = "Zdr"
	FieldKdp     = "Kdp"
	FieldAi      = "Ai"
	FieldAv      = "Av"
	FieldAdr     = "Adr"
	FieldLDR     = "LDR"
	FieldRhoHV   = "cross_correlation_ratio_hv"
	FieldDeltaCo = "specific_differential_phase_hv"
)

// MaxMomentOrder is the highest extra moment order that may be requested.
const MaxMomentOrder = 12

// Info keys for station metadata.
const (
	InfoStationName = "StationName"
	InfoLatitude    = "Latitude_value"
	InfoLongitude   = "Longitude_value"
	InfoAltitude    = "Altitude_value"
	InfoInstrument  = "Instrument"
)

// ScatteringInfo records the configuration radar parameters were computed with.
type ScatteringInfo struct {
	FrequencyHz  float64
	TemperatureC float64
	ElevationDeg float64
	Source       string // "measured" or "fitted"
}

// DropSizeDistribution is the aggregate for one dataset. It is built once from
// a raw source snapshot and then enriched by calculators that append fields.
// Fields are never removed or resized. It is not safe for concurrent mutation.
type DropSizeDistribution struct {
	Geometry *BinGeometry
	Time     []time.Time
	Info     map[string]string

	fields map[string]*FieldSeries
	labels map[string]*LabelSeries

	// Fit is set by the parametric fitter.
	Fit *FittedModelParameters
	// Scattering is set by the radar parameter calculator.
	Scattering *ScatteringInfo
}

// New creates an empty aggregate over the given geometry and time axis.
func New(geom *BinGeometry, times []time.Time, info map[string]string) (*DropSizeDistribution, error) {
	if geom == nil {
		return nil, fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no timestamps", ErrInvalidTimeAxis)
	}
	for i := 1; i < len(times); i++ {
		if times[i].Before(times[i-1]) {
			return nil, fmt.Errorf("%w: timestamp %d (%s) precedes %d (%s)", ErrInvalidTimeAxis,
				i, times[i].Format(time.RFC3339), i-1, times[i-1].Format(time.RFC3339))
		}
	}

	meta := make(map[string]string, len(info))
	for k, v := range info {
		meta[k] = v
	}

	return &DropSizeDistribution{
		Geometry: geom,
		Time:     append([]time.Time(nil), times...),
		Info:     meta,
		fields:   make(map[string]*FieldSeries),
		labels:   make(map[string]*LabelSeries),
	}, nil
}

// NumTime returns the length of the time axis.
func (d *DropSizeDistribution) NumTime() int { return len(d.Time) }

// NumBins returns the number of diameter bins.
func (d *DropSizeDistribution) NumBins() int { return d.Geometry.NumBins() }

// AddField attaches a new series. The series must match the time axis (and
// the bin count when spectral) and must not replace an existing field.
func (d *DropSizeDistribution) AddField(f *FieldSeries) error {
	if f == nil || f.Name == "" {
		return &FieldConflictError{Field: "", Reason: "unnamed field"}
	}
	if _, ok := d.fields[f.Name]; ok {
		return &FieldConflictError{Field: f.Name, Reason: "already present"}
	}
	if f.NumTime != d.NumTime() {
		return &FieldConflictError{Field: f.Name, Reason: fmt.Sprintf("has %d time steps, dataset has %d", f.NumTime, d.NumTime())}
	}
	if f.NumBins != 0 && f.NumBins != d.NumBins() {
		return &FieldConflictError{Field: f.Name, Reason: fmt.Sprintf("has %d bins, geometry has %d", f.NumBins, d.NumBins())}
	}
	if err := f.Validate(); err != nil {
		return err
	}
	d.fields[f.Name] = f
	return nil
}

// Field returns the named series.
func (d *DropSizeDistribution) Field(name string) (*FieldSeries, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// RequireField returns the named series or a MissingFieldError.
func (d *DropSizeDistribution) RequireField(name string) (*FieldSeries, error) {
	f, ok := d.fields[name]
	if !ok {
		return nil, &MissingFieldError{Field: name}
	}
	return f, nil
}

// FieldNames returns the sorted names of all numeric fields.
func (d *DropSizeDistribution) FieldNames() []string {
	names := make([]string, 0, len(d.fields))
	for k := range d.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AddLabels attaches a text channel. It follows the same append-only rule as AddField.
func (d *DropSizeDistribution) AddLabels(l *LabelSeries) error {
	if l == nil || l.Name == "" {
		return &FieldConflictError{Field: "", Reason: "unnamed label series"}
	}
	if _, ok := d.labels[l.Name]; ok {
		return &FieldConflictError{Field: l.Name, Reason: "already present"}
	}
	if len(l.Values) != d.NumTime() || len(l.Valid) != d.NumTime() {
		return &FieldConflictError{Field: l.Name, Reason: "length does not match time axis"}
	}
	d.labels[l.Name] = l
	return nil
}

// Labels returns the named text channel.
func (d *DropSizeDistribution) Labels(name string) (*LabelSeries, bool) {
	l, ok := d.labels[name]
	return l, ok
}

// StationName returns the configured station name or "unknown".
func (d *DropSizeDistribution) StationName() string {
	if v := d.Info[InfoStationName]; v != "" {
		return v
	}
	return "unknown"
}
