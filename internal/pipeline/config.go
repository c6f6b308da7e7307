package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/export"
	"github.com/chrissnell/disdrometer/internal/fit"
	"github.com/chrissnell/disdrometer/internal/normalize"
	"github.com/chrissnell/disdrometer/internal/scattering"
	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/internal/source/parsivel"
	"github.com/chrissnell/disdrometer/pkg/config"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// OpenSource creates the raw source named by the configuration.
func OpenSource(cfg config.SourceData, logger *zap.SugaredLogger) (source.Source, error) {
	switch cfg.Type {
	case config.SourceParsivel:
		src, err := parsivel.Open(cfg.Path, parsivel.Options{
			Name:       cfg.Station.Name,
			Variant:    parsivel.Variant(cfg.Variant),
			Layout:     cfg.Layout,
			TimeLayout: cfg.TimeLayout,
			Info:       StationInfo(cfg.Station),
		}, logger)
		if err != nil {
			return nil, err
		}
		if n := src.Skipped(); n > 0 && logger != nil {
			logger.Warnf("skipped %d malformed telegrams in %s", n, cfg.Path)
		}
		return src, nil
	case config.SourceMemory:
		return nil, fmt.Errorf("%s sources are built in code and cannot be opened from configuration", cfg.Type)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}

// StationInfo converts station configuration to dataset metadata.
func StationInfo(st config.StationData) map[string]string {
	info := make(map[string]string)
	for k, v := range map[string]string{
		dsd.InfoStationName: st.Name,
		dsd.InfoLatitude:    st.Latitude,
		dsd.InfoLongitude:   st.Longitude,
		dsd.InfoAltitude:    st.Altitude,
	} {
		if v != "" {
			info[k] = v
		}
	}
	return info
}

// OptionsFromConfig converts a loaded configuration into run options,
// loading the scattering table file when one is configured.
func OptionsFromConfig(cfg *config.ConfigData) (Options, error) {
	opts := Options{Workers: cfg.Workers}

	opts.Normalizer = normalize.Options{
		DisableFloor:   cfg.Normalizer.DisableFloor,
		SampleInterval: cfg.SampleInterval(),
		BeamLength:     cfg.Normalizer.BeamLength,
		BeamWidth:      cfg.Normalizer.BeamWidth,
	}
	if cfg.Normalizer.Floor != nil {
		floor := *cfg.Normalizer.Floor
		opts.Normalizer.Floor = &floor
	}
	opts.Moments.ExtraOrders = cfg.Moments.ExtraOrders

	if cfg.Fit.Enabled {
		opts.Fit = &FitOptions{
			Method: fit.Method(cfg.Fit.Method),
			Options: fit.Options{
				MinBins:        cfg.Fit.MinBins,
				MaxIterations:  cfg.Fit.MaxIterations,
				MaxEvaluations: cfg.Fit.MaxEvaluations,
			},
		}
	}

	if sc := cfg.Scattering; sc.Enabled {
		s := &ScatteringOptions{
			Config: scattering.Config{
				FrequencyHz:  sc.FrequencyHz,
				ElevationDeg: sc.ElevationDeg,
				KwSquared:    sc.KwSquared,
				Pathway:      scattering.Pathway(sc.Pathway),
			},
			Shape: scattering.Shape(sc.Shape),
		}
		if sc.TemperatureC != nil {
			s.Config.TemperatureC = *sc.TemperatureC
		}
		if sc.DBFloor != nil {
			floor := *sc.DBFloor
			s.Config.DBFloor = &floor
		}
		if err := s.Config.WithDefaults().Validate(); err != nil {
			return opts, err
		}
		if sc.Table != "" {
			table, err := scattering.LoadFile(sc.Table)
			if err != nil {
				return opts, err
			}
			s.Table = table
		}
		opts.Scattering = s
	}

	if ex := cfg.Export; ex.Enabled {
		for _, f := range ex.Fields {
			if _, err := export.ExternalName(f); err != nil {
				return opts, err
			}
		}
		w := export.Options{
			BaseDir:         ex.BaseDir,
			CreateDirs:      ex.CreateDirs,
			DatePartitioned: ex.DatePartitioned,
			FillValue:       ex.FillValue,
			FrequencyHz:     cfg.Scattering.FrequencyHz,
			ElevationDeg:    cfg.Scattering.ElevationDeg,
		}
		if ex.Precision != nil {
			precision := *ex.Precision
			w.Precision = &precision
		}
		opts.Export = &ExportOptions{Writer: w, Fields: ex.Fields}
	}

	return opts, nil
}
