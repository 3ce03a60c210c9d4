package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/internal/config"
	"github.com/inferloop/anonkl/internal/export"
	"github.com/inferloop/anonkl/internal/observability/metrics"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/server"
	"github.com/inferloop/anonkl/internal/storage"
	"github.com/inferloop/anonkl/pkg/constants"
)

func main() {
	flags := ParseFlags()

	cfg, err := config.LoadConfig(flags.ConfigFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if flags.IsSet("log-level") || level == "" {
		level = flags.LogLevel
	}
	if flags.IsSet("log-format") || format == "" {
		format = flags.LogFormat
	}
	logger := config.NewLogger(level, format, os.Stdout)

	info := GetBuildInfo()
	logger.WithFields(logrus.Fields{
		"version":   info.Version,
		"commit":    info.GitCommit,
		"buildDate": info.BuildDate,
	}).Info("Starting anonymization server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize dependencies")
	}
	defer cleanup()
	deps.Build = info

	serverConfig := server.DefaultConfig()
	serverConfig.Host = pick(flags.IsSet("host"), flags.Host, cfg.Server.Host)
	serverConfig.Port = pickInt(flags.IsSet("port"), flags.Port, cfg.Server.Port)
	serverConfig.MetricsPort = pickInt(flags.IsSet("metrics-port"), flags.MetricsPort, cfg.Server.MetricsPort)
	serverConfig.CORS.AllowedOrigins = cfg.Server.CORSOrigins
	serverConfig.TLSCertFile = flags.TLSCert
	serverConfig.TLSKeyFile = flags.TLSKey

	srv, err := server.NewServer(serverConfig, deps, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Error("Server failed")
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server stopped")
}

// buildDependencies wires the anonymizer, exporter, metrics and the optional
// stores. Storage is only connected when configured beyond the defaults.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (server.Dependencies, func(), error) {
	var deps server.Dependencies
	cleanup := func() {}

	defaults, err := cfg.RunConfig()
	if err != nil {
		return deps, cleanup, err
	}
	load, err := cfg.LoadOptions()
	if err != nil {
		return deps, cleanup, err
	}
	exportConfig, err := cfg.ExportConfig()
	if err != nil {
		return deps, cleanup, err
	}
	exporter, err := export.NewExportEngine(exportConfig, logger)
	if err != nil {
		return deps, cleanup, err
	}
	pm, err := metrics.NewPrometheusMetrics(nil, logger)
	if err != nil {
		return deps, cleanup, err
	}

	deps = server.Dependencies{
		Anonymizer: privacy.NewAnonymizer(nil, logger),
		Exporter:   exporter,
		Metrics:    pm,
		Defaults:   defaults,
		Load:       load,
	}

	factory := storage.NewFactory(logger)
	storageConfig := cfg.StorageConfig()

	if storageConfig.Type == constants.StorageTypeS3 || cfg.Output.Directory != constants.DefaultOutputDirectory {
		artifacts, err := factory.CreateArtifactStore(ctx, storageConfig)
		if err != nil {
			return deps, cleanup, err
		}
		deps.Artifacts = artifacts
	}

	reports, err := factory.CreateReportStore(ctx, storageConfig)
	if err != nil {
		return deps, cleanup, err
	}
	deps.Reports = reports

	cleanup = func() {
		if deps.Artifacts != nil {
			deps.Artifacts.Close()
		}
		if deps.Reports != nil {
			deps.Reports.Close()
		}
	}

	return deps, cleanup, nil
}

func pick(flagSet bool, flagValue, configValue string) string {
	if flagSet || configValue == "" {
		return flagValue
	}
	return configValue
}

func pickInt(flagSet bool, flagValue, configValue int) int {
	if flagSet || configValue == 0 {
		return flagValue
	}
	return configValue
}
