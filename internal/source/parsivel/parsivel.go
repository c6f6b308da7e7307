// Package parsivel reads logged OTT Parsivel² ASCII telegrams into a raw
// spectrum source.
//
// Each input line is one telegram prefixed by the logger's timestamp:
//
//	<timestamp>;<field>;<field>;...
//
// The field order is given by a layout of Parsivel telegram field numbers.
// Scalar fields take one token; 90 (log10 N(D)) and 91 (v(D)) take 32
// tokens; 93 (raw spectrum) takes 1024 tokens ordered by velocity class,
// diameter class varying fastest. Empty and '#' lines are ignored.
package parsivel

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// Telegram field numbers understood by the reader.
const (
	FieldIntensity    = "01"
	FieldWeatherSYNOP = "04"
	FieldWeatherMETAR = "06"
	FieldReflectivity = "07"
	FieldParticles    = "11"
	FieldNd           = "90"
	FieldVd           = "91"
	FieldRaw          = "93"
)

// DefaultLayout is the telegram configured on the stations this reader was written for.
var DefaultLayout = []string{FieldIntensity, FieldReflectivity, FieldParticles, FieldWeatherMETAR, FieldNd, FieldVd, FieldRaw}

// telegramFill is what the instrument prints for an empty class in field 90.
const telegramFill = -9.999

const numClasses = 32

// Variant selects which channel set the source exposes.
type Variant string

const (
	// VariantOTT exposes the full OTT channel set: Nd, RR, reflectivity,
	// num_particles, terminal_velocity and Precip_Code.
	VariantOTT Variant = "ott"
	// VariantARM exposes the reduced ARM channel set: Nd, velocity and rain_rate.
	VariantARM Variant = "arm"
)

// Options configures the reader.
type Options struct {
	Name       string
	Variant    Variant
	Layout     []string
	TimeLayout string // defaults to time.RFC3339
	Info       map[string]string
}

// Source is a raw spectrum source backed by parsed telegrams.
type Source struct {
	opts    Options
	times   []time.Time
	scalars map[string][]float64
	codes   map[string][]string
	nd      []float64 // time-major, numClasses per step
	vd      []float64 // time-major, numClasses per step
	raw     []float64 // [t][d][v]
	skipped int
	caps    source.Capabilities
}

// Open reads telegrams from a file.
func Open(path string, opts Options, logger *zap.SugaredLogger) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening telegram log %s: %w", path, err)
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = path
	}
	return Read(f, opts, logger)
}

// Read parses telegrams from r. Lines with the wrong number of tokens or
// unparsable numbers are skipped and logged; an unparsable timestamp is an error.
func Read(r io.Reader, opts Options, logger *zap.SugaredLogger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(opts.Layout) == 0 {
		opts.Layout = DefaultLayout
	}
	if opts.TimeLayout == "" {
		opts.TimeLayout = time.RFC3339
	}
	if opts.Variant == "" {
		opts.Variant = VariantOTT
	}
	if opts.Variant != VariantOTT && opts.Variant != VariantARM {
		return nil, fmt.Errorf("unknown parsivel variant %q", opts.Variant)
	}

	want := 1
	for _, id := range opts.Layout {
		want += tokenCount(id)
	}

	s := &Source{
		opts:    opts,
		scalars: make(map[string][]float64),
		codes:   make(map[string][]string),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens := strings.Split(strings.TrimSuffix(line, ";"), ";")
		if len(tokens) != want {
			logger.Warnf("parsivel [%s] line %d: expected %d tokens, got %d; skipping", opts.Name, lineNo, want, len(tokens))
			s.skipped++
			continue
		}

		ts, err := time.Parse(opts.TimeLayout, strings.TrimSpace(tokens[0]))
		if err != nil {
			return nil, fmt.Errorf("parsivel [%s] line %d: bad timestamp %q: %w", opts.Name, lineNo, tokens[0], err)
		}

		if err := s.appendTelegram(tokens[1:]); err != nil {
			logger.Warnf("parsivel [%s] line %d: %v; skipping", opts.Name, lineNo, err)
			s.skipped++
			continue
		}
		s.times = append(s.times, ts.UTC())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading telegrams: %w", err)
	}

	s.setCapabilities()
	logger.Debugf("parsivel [%s] read %d telegrams, skipped %d", opts.Name, len(s.times), s.skipped)
	return s, nil
}

func tokenCount(id string) int {
	switch id {
	case FieldNd, FieldVd:
		return numClasses
	case FieldRaw:
		return numClasses * numClasses
	default:
		return 1
	}
}

// appendTelegram parses one telegram into scratch buffers and only commits
// them when every field parsed, so a bad line leaves no partial step behind.
func (s *Source) appendTelegram(tokens []string) error {
	scalars := make(map[string]float64)
	codes := make(map[string]string)
	var nd, vd, raw []float64

	pos := 0
	for _, id := range s.opts.Layout {
		n := tokenCount(id)
		chunk := tokens[pos : pos+n]
		pos += n

		switch id {
		case FieldWeatherMETAR, FieldWeatherSYNOP:
			codes[id] = strings.TrimSpace(chunk[0])
		case FieldNd:
			v, err := parseFloats(chunk)
			if err != nil {
				return fmt.Errorf("field %s: %w", id, err)
			}
			nd = v
		case FieldVd:
			v, err := parseFloats(chunk)
			if err != nil {
				return fmt.Errorf("field %s: %w", id, err)
			}
			vd = v
		case FieldRaw:
			v, err := parseFloats(chunk)
			if err != nil {
				return fmt.Errorf("field %s: %w", id, err)
			}
			// Telegram order is [v][d]; store [d][v].
			raw = make([]float64, len(v))
			for iv := 0; iv < numClasses; iv++ {
				for di := 0; di < numClasses; di++ {
					raw[di*numClasses+iv] = v[iv*numClasses+di]
				}
			}
		default:
			v, err := strconv.ParseFloat(strings.TrimSpace(chunk[0]), 64)
			if err != nil {
				return fmt.Errorf("field %s: %w", id, err)
			}
			scalars[id] = v
		}
	}

	for k, v := range scalars {
		s.scalars[k] = append(s.scalars[k], v)
	}
	for k, v := range codes {
		s.codes[k] = append(s.codes[k], v)
	}
	s.nd = append(s.nd, nd...)
	s.vd = append(s.vd, vd...)
	s.raw = append(s.raw, raw...)
	return nil
}

func parseFloats(tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Source) hasLayout(id string) bool {
	for _, l := range s.opts.Layout {
		if l == id {
			return true
		}
	}
	return false
}

func (s *Source) setCapabilities() {
	if s.hasLayout(FieldNd) {
		s.caps.Add(source.Spectrum)
	}
	if s.hasLayout(FieldVd) {
		s.caps.Add(source.Velocity)
	}
	if s.hasLayout(FieldIntensity) {
		s.caps.Add(source.Intensity)
	}
	if s.opts.Variant == VariantOTT {
		if s.hasLayout(FieldRaw) {
			s.caps.Add(source.Counts)
		}
		if s.hasLayout(FieldReflectivity) {
			s.caps.Add(source.Reflectivity)
		}
		if s.hasLayout(FieldWeatherMETAR) || s.hasLayout(FieldWeatherSYNOP) {
			s.caps.Add(source.PrecipCode)
		}
	}
}

// channel maps an engine field name to the telegram field behind it for the active variant.
func (s *Source) channel(name string) (string, bool) {
	var m map[string]string
	if s.opts.Variant == VariantARM {
		m = map[string]string{
			dsd.FieldNd:          FieldNd,
			dsd.FieldVelocity:    FieldVd,
			dsd.FieldRainRateARM: FieldIntensity,
		}
	} else {
		m = map[string]string{
			dsd.FieldNd:               FieldNd,
			dsd.FieldRainRate:         FieldIntensity,
			dsd.FieldReflectivity:     FieldReflectivity,
			dsd.FieldNumParticles:     FieldRaw,
			dsd.FieldTerminalVelocity: FieldVd,
			"particle_count":          FieldParticles,
		}
	}
	id, ok := m[name]
	if !ok || !s.hasLayout(id) {
		return "", false
	}
	return id, true
}

// Name identifies the source.
func (s *Source) Name() string { return "parsivel:" + s.opts.Name }

// Capabilities returns the channel classes present in the layout.
func (s *Source) Capabilities() source.Capabilities { return s.caps }

// Skipped returns the number of malformed telegrams dropped while reading.
func (s *Source) Skipped() int { return s.skipped }

// Time returns the telegram timestamps. Actual timestamps are used; no fixed
// sampling interval is assumed.
func (s *Source) Time() []time.Time { return append([]time.Time(nil), s.times...) }

// Geometry returns the Parsivel² diameter classes.
func (s *Source) Geometry() (*dsd.BinGeometry, error) { return dsd.ParsivelGeometry(), nil }

// Supplies reports whether a channel is available.
func (s *Source) Supplies(field string) bool {
	if field == dsd.FieldPrecipCode {
		return s.opts.Variant == VariantOTT && (s.hasLayout(FieldWeatherMETAR) || s.hasLayout(FieldWeatherSYNOP))
	}
	_, ok := s.channel(field)
	return ok
}

// Field returns a numeric channel.
func (s *Source) Field(name string) (source.RawField, error) {
	id, ok := s.channel(name)
	if !ok {
		return source.RawField{}, &dsd.MissingFieldError{Field: name, Source: s.Name()}
	}
	nt := len(s.times)

	switch id {
	case FieldNd:
		return source.RawField{
			Name:        name,
			Units:       "log10(1/m^3 1/mm)",
			Description: "Liquid water particle concentration",
			Encoding:    source.EncodingLog10,
			Order:       source.TimeMajor,
			Shape:       []int{nt, numClasses},
			Data:        append([]float64(nil), s.nd...),
			FillValue:   telegramFill,
			HasFill:     true,
		}, nil
	case FieldVd:
		return source.RawField{
			Name:        name,
			Units:       dsd.UnitsMetersPerSec,
			Description: "Terminal fall velocity for each bin",
			Order:       source.TimeMajor,
			Shape:       []int{nt, numClasses},
			Data:        append([]float64(nil), s.vd...),
			FillValue:   0,
			HasFill:     true,
		}, nil
	case FieldRaw:
		return source.RawField{
			Name:        name,
			Units:       dsd.UnitsCount,
			Description: "Raw particle counts per diameter and velocity class",
			Encoding:    source.EncodingCounts,
			Order:       source.TimeMajor,
			Shape:       []int{nt, numClasses, numClasses},
			Data:        append([]float64(nil), s.raw...),
		}, nil
	}

	units, desc := dsd.UnitsNone, ""
	switch id {
	case FieldIntensity:
		units, desc = dsd.UnitsMMPerHour, "Rain rate"
	case FieldReflectivity:
		units, desc = dsd.UnitsDBZ, "Instrument reflectivity"
	case FieldParticles:
		units, desc = dsd.UnitsCount, "Number of detected particles"
	}
	return source.RawField{
		Name:        name,
		Units:       units,
		Description: desc,
		Shape:       []int{nt},
		Data:        append([]float64(nil), s.scalars[id]...),
		FillValue:   telegramFill,
		HasFill:     true,
	}, nil
}

// Labels returns the precipitation code channel.
func (s *Source) Labels(name string) (*dsd.LabelSeries, error) {
	if name != dsd.FieldPrecipCode || !s.Supplies(name) {
		return nil, &dsd.MissingFieldError{Field: name, Source: s.Name()}
	}
	codes := s.codes[FieldWeatherMETAR]
	if codes == nil {
		codes = s.codes[FieldWeatherSYNOP]
	}
	l := &dsd.LabelSeries{
		Name:        name,
		Description: "Precipitation type code",
		Values:      make([]string, len(s.times)),
		Valid:       make([]bool, len(s.times)),
	}
	for i, c := range codes {
		l.Values[i] = c
		l.Valid[i] = c != ""
	}
	return l, nil
}

// Info returns configured station metadata plus the instrument name.
func (s *Source) Info() map[string]string {
	out := map[string]string{dsd.InfoInstrument: "OTT Parsivel2"}
	for k, v := range s.opts.Info {
		out[k] = v
	}
	return out
}
