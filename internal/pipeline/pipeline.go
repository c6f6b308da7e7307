// Package pipeline assembles a DropSizeDistribution from a raw source and
// runs the calculator stages over it in order: moments, gamma fit,
// scattering, then export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/export"
	"github.com/chrissnell/disdrometer/internal/fit"
	"github.com/chrissnell/disdrometer/internal/moments"
	"github.com/chrissnell/disdrometer/internal/normalize"
	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/internal/scattering"
	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for run timing. Pass nil to reset.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// channels are copied from the source unchanged when it supplies them.
var channels = []string{
	dsd.FieldRainRate,
	dsd.FieldRainRateARM,
	dsd.FieldReflectivity,
	dsd.FieldTerminalVelocity,
	dsd.FieldVelocity,
}

// FitOptions enables the gamma fit stage.
type FitOptions struct {
	Method  fit.Method
	Options fit.Options
}

// ScatteringOptions enables the radar parameter stage. A nil Table computes
// Rayleigh-Gans amplitudes for the dataset geometry with Shape.
type ScatteringOptions struct {
	Config scattering.Config
	Table  scattering.Table
	Shape  scattering.Shape
}

// ExportOptions enables the export stage.
type ExportOptions struct {
	Writer export.Options
	Fields []string
}

// Options selects and configures the stages of a run. Nil stage options
// skip that stage.
type Options struct {
	Normalizer normalize.Options
	Moments    moments.Options
	Fit        *FitOptions
	Scattering *ScatteringOptions
	Export     *ExportOptions
	Workers    int
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	DSD      *dsd.DropSizeDistribution
	Exported []string
	Duration time.Duration
}

// Runner executes processing runs.
type Runner struct {
	opts    Options
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// New creates a Runner. metrics may be nil.
func New(opts Options, logger *zap.SugaredLogger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{opts: opts, logger: logger, metrics: metrics}
}

// Run builds the dataset from src and runs every enabled stage. Stage errors
// abort the run; per-step failures only mask values.
func (r *Runner) Run(ctx context.Context, src source.Source) (*Result, error) {
	start := clock.Now()
	runID := uuid.New().String()
	logger := r.logger.With("run", runID, "source", src.Name())

	if r.metrics != nil {
		r.metrics.RunsTotal.Inc()
	}

	d, err := Build(src, normalize.New(r.opts.Normalizer, logger.Named("normalize")), logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("built dataset: %d steps, %d bins", d.NumTime(), d.NumBins())

	momentOpts := r.opts.Moments
	if momentOpts.Workers == 0 {
		momentOpts.Workers = r.opts.Workers
	}
	if err := moments.NewCalculator(momentOpts, logger.Named("moments"), r.metrics).Calculate(ctx, d); err != nil {
		return nil, fmt.Errorf("moments: %w", err)
	}

	if f := r.opts.Fit; f != nil {
		calc := fit.NewCalculator(f.Method, f.Options, r.opts.Workers, logger.Named("fit"), r.metrics)
		if err := calc.Calculate(ctx, d); err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		logger.Infof("gamma fit (%s): %d of %d steps succeeded", f.Method, d.Fit.Succeeded(), d.NumTime())
	}

	if s := r.opts.Scattering; s != nil {
		table := s.Table
		if table == nil {
			table = scattering.NewRayleighTable(d.Geometry, s.Shape, s.Config.WithDefaults())
		}
		calc := scattering.NewCalculator(r.opts.Workers, logger.Named("scattering"), r.metrics)
		if err := calc.Calculate(ctx, d, table, s.Config); err != nil {
			return nil, fmt.Errorf("scattering: %w", err)
		}
	}

	res := &Result{RunID: runID, DSD: d}

	if e := r.opts.Export; e != nil {
		w := export.NewWriter(e.Writer, logger.Named("export"), r.metrics)
		w.SetRunID(runID)
		paths, err := w.WriteAll(d, e.Fields)
		res.Exported = paths
		if err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
		logger.Infof("exported %d files", len(paths))
	}

	res.Duration = clock.Since(start)
	return res, nil
}

// Build creates a dataset from src: geometry first, then Nd (from the
// spectrum, or from raw counts when no spectrum is supplied), then the plain
// channels and precipitation codes the source carries.
func Build(src source.Source, norm *normalize.Normalizer, logger *zap.SugaredLogger) (*dsd.DropSizeDistribution, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	geom, err := src.Geometry()
	if err != nil {
		if !errors.Is(err, dsd.ErrInvalidGeometry) {
			err = fmt.Errorf("%w: %v", dsd.ErrInvalidGeometry, err)
		}
		return nil, fmt.Errorf("source %s: %w", src.Name(), err)
	}

	d, err := dsd.New(geom, src.Time(), src.Info())
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name(), err)
	}

	nd, err := spectrum(src, norm, geom)
	if err != nil {
		return nil, err
	}
	if err := d.AddField(nd); err != nil {
		return nil, err
	}

	for _, name := range channels {
		if !src.Supplies(name) {
			continue
		}
		raw, err := src.Field(name)
		if err != nil {
			return nil, err
		}
		f, err := normalize.Channel(raw, geom)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		f.Name = name
		if err := d.AddField(f); err != nil {
			return nil, err
		}
	}

	if src.Supplies(dsd.FieldPrecipCode) {
		l, err := src.Labels(dsd.FieldPrecipCode)
		if err != nil {
			return nil, err
		}
		if err := d.AddLabels(l); err != nil {
			return nil, err
		}
	}

	logger.Debugf("fields from %s: %v", src.Name(), d.FieldNames())
	return d, nil
}

func spectrum(src source.Source, norm *normalize.Normalizer, geom *dsd.BinGeometry) (*dsd.FieldSeries, error) {
	name := dsd.FieldNd
	if !src.Supplies(name) {
		if !src.Capabilities().Has(source.Counts) || !src.Supplies(dsd.FieldNumParticles) {
			return nil, &dsd.MissingFieldError{Field: dsd.FieldNd}
		}
		name = dsd.FieldNumParticles
	}

	raw, err := src.Field(name)
	if err != nil {
		return nil, err
	}
	nd, err := norm.Normalize(raw, geom)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", name, err)
	}
	nd.Name = dsd.FieldNd
	return nd, nil
}
