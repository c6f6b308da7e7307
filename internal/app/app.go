package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/internal/pipeline"
	"github.com/chrissnell/disdrometer/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	envFile        string
	logger         *zap.SugaredLogger
	metrics        *observability.Metrics
}

// New creates a new application instance. envFile may be empty.
func New(configProvider config.ConfigProvider, envFile string, logger *zap.SugaredLogger, metrics *observability.Metrics) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		configProvider: configProvider,
		envFile:        envFile,
		logger:         logger,
		metrics:        metrics,
	}
}

// Run processes the configured source once. SIGINT and SIGTERM cancel the
// run between time steps.
func (a *App) Run(ctx context.Context) (*pipeline.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, a.envFile); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := pipeline.OpenSource(cfg.Source, a.logger.Named("source"))
	if err != nil {
		return nil, err
	}

	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	a.logger.Infof("processing %s with %d workers", src.Name(), cfg.Workers)
	res, err := pipeline.New(opts, a.logger, a.metrics).Run(ctx, src)
	if err != nil {
		return res, err
	}
	a.logger.Infow("run complete", "run", res.RunID, "steps", res.DSD.NumTime(), "files", len(res.Exported), "duration", res.Duration)
	return res, nil
}
