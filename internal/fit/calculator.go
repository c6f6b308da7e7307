package fit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/internal/workerpool"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

const stage = "fit"

// Calculator fits every time step of a dataset using a pluggable strategy.
type Calculator struct {
	fitter  Fitter
	method  Method
	workers int
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// NewCalculator creates a Calculator with the specified estimation strategy.
func NewCalculator(method Method, opts Options, workers int, logger *zap.SugaredLogger, metrics *observability.Metrics) *Calculator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if method == "" {
		method = MethodNonlinear
	}
	return &Calculator{
		fitter:  NewFitter(method, opts),
		method:  method,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// SetFitter allows runtime switching of the estimation strategy
func (c *Calculator) SetFitter(method Method, f Fitter) {
	c.method = method
	c.fitter = f
}

// Calculate fits each step, sets d.Fit and appends N0, mu, Lambda and
// fit_residual. Failed steps are masked.
func (c *Calculator) Calculate(ctx context.Context, d *dsd.DropSizeDistribution) error {
	start := time.Now()

	if d.Fit != nil {
		return &dsd.FieldConflictError{Field: dsd.FieldN0, Reason: "dataset already fitted"}
	}
	nd, err := d.RequireField(dsd.FieldNd)
	if err != nil {
		return err
	}

	nt := d.NumTime()
	steps := make([]dsd.GammaFit, nt)
	err = workerpool.ForEach(ctx, nt, c.workers, func(t int) error {
		values, mask := nd.Row(t)
		steps[t] = c.fitter.Fit(d.Geometry, values, mask)
		return nil
	})
	if err != nil {
		return fmt.Errorf("error fitting gamma model: %w", err)
	}

	n0 := dsd.NewFieldSeries(dsd.FieldN0, "1/m^3 1/mm^(1+mu)", "Gamma intercept parameter", nt, 0)
	mu := dsd.NewFieldSeries(dsd.FieldMu, dsd.UnitsNone, "Gamma shape parameter", nt, 0)
	lambda := dsd.NewFieldSeries(dsd.FieldLambda, dsd.UnitsPerMM, "Gamma slope parameter", nt, 0)
	resid := dsd.NewFieldSeries(dsd.FieldFitResidual, "log10", "RMSE of log10 fit residuals", nt, 0)

	nfailed := 0
	for t, s := range steps {
		c.metrics.Step(stage, !s.OK)
		c.metrics.ObserveFit(s.Iterations)
		if !s.OK {
			nfailed++
			c.logger.Debugw("gamma fit failed", "error", &dsd.StepError{Stage: stage, Index: t, Reason: s.Reason})
			continue
		}
		n0.Set(t, 0, s.N0)
		mu.Set(t, 0, s.Mu)
		lambda.Set(t, 0, s.Lambda)
		resid.Set(t, 0, s.Residual)
	}

	for _, f := range []*dsd.FieldSeries{n0, mu, lambda, resid} {
		if err := d.AddField(f); err != nil {
			return err
		}
	}
	d.Fit = &dsd.FittedModelParameters{Method: string(c.method), Steps: steps}

	c.metrics.ObserveStage(stage, time.Since(start).Seconds())
	c.logger.Debugf("fit (%s): %d steps, %d failed", c.method, nt, nfailed)
	return nil
}
