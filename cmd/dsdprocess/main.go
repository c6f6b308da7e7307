package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chrissnell/disdrometer/internal/app"
	"github.com/chrissnell/disdrometer/internal/constants"
	"github.com/chrissnell/disdrometer/internal/log"
	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration")
	envFile := flag.String("env", constants.DefaultEnvFile, "Optional file of DSD_* environment overrides")
	metricsOut := flag.String("metrics-out", "", "Write run metrics to this file in Prometheus text format")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dsdprocess %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	filename, _ := filepath.Abs(*cfgFile)
	log.Infow("Starting dsdprocess", "version", constants.Version, "config", filename)
	log.Debugf("Environment overrides from %s", *envFile)
	metrics := observability.NewMetrics()

	application := app.New(config.NewYAMLProvider(filename), *envFile, log.Component("app"), metrics)
	_, runErr := application.Run(context.Background())

	if *metricsOut != "" {
		if err := prometheus.WriteToTextfile(*metricsOut, prometheus.DefaultGatherer); err != nil {
			log.Warnf("Failed to write metrics to %s: %v", *metricsOut, err)
		}
	}

	if runErr != nil {
		log.Errorf("Processing error: %v", runErr)
		log.Sync()
		os.Exit(1)
	}
}
