package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// Source types understood by the pipeline.
const (
	SourceParsivel = "parsivel"
	SourceMemory   = "memory"
)

// ConfigData represents the complete configuration of one processing run
type ConfigData struct {
	Source     SourceData     `yaml:"source"`
	Normalizer NormalizerData `yaml:"normalizer,omitempty"`
	Moments    MomentsData    `yaml:"moments,omitempty"`
	Fit        FitData        `yaml:"fit,omitempty"`
	Scattering ScatteringData `yaml:"scattering,omitempty"`
	Export     ExportData     `yaml:"export,omitempty"`
	// Workers bounds per-step parallelism in every stage. 0 uses all CPUs.
	Workers int `yaml:"workers,omitempty"`
}

// SourceData selects the raw spectrum input
type SourceData struct {
	Type       string      `yaml:"type"`
	Path       string      `yaml:"path,omitempty"`
	Variant    string      `yaml:"variant,omitempty"`
	Layout     []string    `yaml:"layout,omitempty"`
	TimeLayout string      `yaml:"time_layout,omitempty"`
	Station    StationData `yaml:"station,omitempty"`
}

// StationData is the site metadata written into export headers
type StationData struct {
	Name      string `yaml:"name"`
	Latitude  string `yaml:"latitude,omitempty"`
	Longitude string `yaml:"longitude,omitempty"`
	Altitude  string `yaml:"altitude,omitempty"`
}

// NormalizerData holds the spectrum normalization settings
type NormalizerData struct {
	// Floor is the concentration at or below which bins are masked. nil uses the default.
	Floor          *float64 `yaml:"floor,omitempty"`
	DisableFloor   bool     `yaml:"disable_floor,omitempty"`
	SampleInterval string   `yaml:"sample_interval,omitempty"`
	BeamLength     float64  `yaml:"beam_length_mm,omitempty"`
	BeamWidth      float64  `yaml:"beam_width_mm,omitempty"`
}

// MomentsData holds the bulk parameter settings
type MomentsData struct {
	ExtraOrders []int `yaml:"extra_orders,omitempty"`
}

// FitData holds the gamma fit settings
type FitData struct {
	Enabled        bool   `yaml:"enabled"`
	Method         string `yaml:"method,omitempty"`
	MinBins        int    `yaml:"min_bins,omitempty"`
	MaxIterations  int    `yaml:"max_iterations,omitempty"`
	MaxEvaluations int    `yaml:"max_evaluations,omitempty"`
}

// ScatteringData holds the radar parameter settings
type ScatteringData struct {
	Enabled      bool     `yaml:"enabled"`
	FrequencyHz  float64  `yaml:"frequency_hz,omitempty"`
	TemperatureC *float64 `yaml:"temperature_c,omitempty"`
	ElevationDeg float64  `yaml:"elevation_deg,omitempty"`
	KwSquared    float64  `yaml:"kw_squared,omitempty"`
	DBFloor      *float64 `yaml:"db_floor,omitempty"`
	Pathway      string   `yaml:"pathway,omitempty"`
	// Table is a precomputed amplitude table file. Empty computes
	// Rayleigh-Gans amplitudes for the run.
	Table string `yaml:"table,omitempty"`
	Shape string `yaml:"shape,omitempty"`
}

// ExportData holds the tabular export settings
type ExportData struct {
	Enabled         bool     `yaml:"enabled"`
	BaseDir         string   `yaml:"base_dir,omitempty"`
	CreateDirs      bool     `yaml:"create_dirs,omitempty"`
	DatePartitioned bool     `yaml:"date_partitioned,omitempty"`
	Fields          []string `yaml:"fields,omitempty"`
	FillValue       *float64 `yaml:"fill_value,omitempty"`
	Precision       *int     `yaml:"precision,omitempty"`
}

// ApplyDefaults fills unset values.
func (c *ConfigData) ApplyDefaults() {
	if c.Source.Type == "" {
		c.Source.Type = SourceParsivel
	}
	if c.Source.Variant == "" {
		c.Source.Variant = "ott"
	}
	if c.Normalizer.SampleInterval == "" {
		c.Normalizer.SampleInterval = "60s"
	}
	if c.Fit.Method == "" {
		c.Fit.Method = "nonlinear"
	}
	if c.Scattering.FrequencyHz == 0 {
		c.Scattering.FrequencyHz = 2.8e9
	}
	if c.Scattering.TemperatureC == nil {
		t := 20.0
		c.Scattering.TemperatureC = &t
	}
	if c.Scattering.Pathway == "" {
		c.Scattering.Pathway = "measured"
	}
	if c.Scattering.Shape == "" {
		c.Scattering.Shape = "oblate"
	}
	if c.Export.BaseDir == "" {
		c.Export.BaseDir = "."
	}
	if c.Export.Precision == nil {
		p := 4
		c.Export.Precision = &p
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks the configuration for values no stage could run with.
func (c *ConfigData) Validate() error {
	switch c.Source.Type {
	case SourceParsivel:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for %s sources", SourceParsivel)
		}
	case SourceMemory:
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	if c.Normalizer.SampleInterval != "" {
		d, err := time.ParseDuration(c.Normalizer.SampleInterval)
		if err != nil {
			return fmt.Errorf("invalid normalizer.sample_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("normalizer.sample_interval must be positive, got %s", d)
		}
	}

	for _, n := range c.Moments.ExtraOrders {
		if n < 0 || n > dsd.MaxMomentOrder {
			return fmt.Errorf("moment order %d out of range [0, %d]", n, dsd.MaxMomentOrder)
		}
	}

	switch c.Fit.Method {
	case "", "loglinear", "nonlinear", "moments":
	default:
		return fmt.Errorf("unknown fit method %q", c.Fit.Method)
	}

	if c.Scattering.Enabled {
		switch c.Scattering.Pathway {
		case "", "measured":
		case "fitted":
			if !c.Fit.Enabled {
				return fmt.Errorf("scattering.pathway fitted requires fit.enabled")
			}
		default:
			return fmt.Errorf("unknown scattering pathway %q", c.Scattering.Pathway)
		}
		switch c.Scattering.Shape {
		case "", "oblate", "sphere":
		default:
			return fmt.Errorf("unknown drop shape %q", c.Scattering.Shape)
		}
	}

	if c.Export.Enabled && len(c.Export.Fields) == 0 {
		return fmt.Errorf("export.fields must list at least one field")
	}
	return nil
}

// SampleInterval returns the parsed normalizer sample interval, or 0 when unset.
func (c *ConfigData) SampleInterval() time.Duration {
	d, _ := time.ParseDuration(c.Normalizer.SampleInterval)
	return d
}
