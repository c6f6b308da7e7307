// Package memory provides an in-memory raw spectrum source, used for
// synthetic datasets and tests.
package memory

import (
	"sort"
	"time"

	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// Source holds raw channels in memory.
type Source struct {
	name    string
	times   []time.Time
	centers []float64
	spread  []float64
	info    map[string]string
	fields  map[string]source.RawField
	labels  map[string]*dsd.LabelSeries
	caps    source.Capabilities
}

// New creates a source over the given time axis and bin definition. The bin
// definition is validated lazily by Geometry, so a malformed geometry can be
// carried up to the point where the pipeline rejects it.
func New(name string, times []time.Time, centers, spread []float64) *Source {
	return &Source{
		name:    name,
		times:   append([]time.Time(nil), times...),
		centers: append([]float64(nil), centers...),
		spread:  append([]float64(nil), spread...),
		info:    make(map[string]string),
		fields:  make(map[string]source.RawField),
		labels:  make(map[string]*dsd.LabelSeries),
	}
}

// WithInfo sets a metadata entry.
func (s *Source) WithInfo(key, value string) *Source {
	s.info[key] = value
	return s
}

// WithField adds a numeric channel and the capability it provides.
func (s *Source) WithField(f source.RawField, cap source.Capability) *Source {
	s.fields[f.Name] = f
	s.caps.Add(cap)
	return s
}

// WithLabels adds a text channel.
func (s *Source) WithLabels(l *dsd.LabelSeries) *Source {
	s.labels[l.Name] = l
	s.caps.Add(source.PrecipCode)
	return s
}

// Name returns the source name prefixed with "memory:".
func (s *Source) Name() string { return "memory:" + s.name }

// Capabilities returns the capabilities added with each channel.
func (s *Source) Capabilities() source.Capabilities { return s.caps }

// Time returns a copy of the time axis.
func (s *Source) Time() []time.Time { return append([]time.Time(nil), s.times...) }

// Geometry validates and returns the bin definition.
func (s *Source) Geometry() (*dsd.BinGeometry, error) { return dsd.NewBinGeometry(s.centers, s.spread) }

// Supplies reports whether a numeric or text channel named field exists.
func (s *Source) Supplies(field string) bool {
	if _, ok := s.fields[field]; ok {
		return true
	}
	_, ok := s.labels[field]
	return ok
}

// Field returns a numeric channel, or a MissingFieldError.
func (s *Source) Field(name string) (source.RawField, error) {
	f, ok := s.fields[name]
	if !ok {
		return source.RawField{}, &dsd.MissingFieldError{Field: name, Source: s.Name()}
	}
	return f, nil
}

// Labels returns a text channel, or a MissingFieldError.
func (s *Source) Labels(name string) (*dsd.LabelSeries, error) {
	l, ok := s.labels[name]
	if !ok {
		return nil, &dsd.MissingFieldError{Field: name, Source: s.Name()}
	}
	return l, nil
}

// Info returns a copy of the metadata.
func (s *Source) Info() map[string]string {
	out := make(map[string]string, len(s.info))
	for k, v := range s.info {
		out[k] = v
	}
	return out
}

// FieldNames returns the numeric channels in sorted order.
func (s *Source) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Spectrum builds a time-major concentration channel from per-step rows.
func Spectrum(name string, enc source.Encoding, rows [][]float64) source.RawField {
	nt := len(rows)
	nb := 0
	if nt > 0 {
		nb = len(rows[0])
	}
	data := make([]float64, 0, nt*nb)
	for _, r := range rows {
		data = append(data, r...)
	}
	return source.RawField{
		Name:     name,
		Units:    dsd.UnitsConcentration,
		Encoding: enc,
		Order:    source.TimeMajor,
		Shape:    []int{nt, nb},
		Data:     data,
	}
}

// Series builds a time-only channel.
func Series(name, units string, values []float64) source.RawField {
	return source.RawField{
		Name:  name,
		Units: units,
		Shape: []int{len(values)},
		Data:  append([]float64(nil), values...),
	}
}
