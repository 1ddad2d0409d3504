// Package main is the entry point for the override API server.
//
// It loads configuration, connects to PostgreSQL, builds the road providers,
// the snapping engine and the override service and mounts the HTTP routes.
// Inside AWS Lambda the router serves API Gateway events; otherwise it listens
// on PORT until SIGINT or SIGTERM, then drains in-flight batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/satyaLM/override-api/internal/api/handlers"
	"github.com/satyaLM/override-api/internal/config"
	"github.com/satyaLM/override-api/internal/core"
	"github.com/satyaLM/override-api/internal/db"
	"github.com/satyaLM/override-api/internal/external"
	"github.com/satyaLM/override-api/internal/metrics"
	"github.com/satyaLM/override-api/internal/override"
	"github.com/satyaLM/override-api/internal/queue"
	"github.com/satyaLM/override-api/internal/snap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load(secretProvider(os.Getenv))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("override API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	repo := db.NewOverrideRepository(pool, logger.With("component", "override_repo"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	snapMetrics := snap.NewMetrics(registry)

	providers, err := external.NewProviderRegistry(cfg.Providers, cfg.Cache, cfg.Snap.ProviderTimeout, snapMetrics,
		logger.With("component", "road_providers"))
	if err != nil {
		pool.Close()
		return fmt.Errorf("building road providers: %w", err)
	}

	locator := snap.NewLocator(locatorConfig(cfg.Snap), providers.Generic, providers.Specialized,
		snap.WithMetrics(snapMetrics),
		snap.WithLogger(logger.With("component", "locator")),
	)
	policy := snap.NewPolicy(policyConfig(cfg.Snap), locator, logger.With("component", "snap_policy"))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		_ = providers.Close()
		return fmt.Errorf("loading AWS config: %w", err)
	}

	deps := override.Deps{
		Store:     repo,
		Policy:    policy,
		Validator: core.NewValidator(logger),
		Outcomes:  snapMetrics,
		Logger:    logger.With("component", "override"),
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	if pub := queue.NewBatchEventPublisher(sqsClient, cfg.AWS, logger.With("component", "audit_queue")); pub != nil {
		deps.Events = pub
	}

	var collector core.MetricsCollector
	stopMetrics := func() {}
	if cfg.Observability.EnableCloudWatch {
		cw := metrics.NewPublisher(cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		}), cfg.Observability.MetricNamespace, logger.With("component", "cloudwatch"))
		// Flushed by a closer once the HTTP server has drained.
		stopMetrics = cw.Start(ctx)
		deps.Metrics = cw
		collector = cw
	}

	var gatherer prometheus.Gatherer
	if cfg.Observability.EnablePrometheus {
		gatherer = registry
	}

	svc := override.NewService(batchConfig(cfg.Batch), deps)

	srv, err := newServer(cfg, logger, svc, collector, gatherer)
	if err != nil {
		stopMetrics()
		pool.Close()
		_ = providers.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(pool), providers.Breakers)
	if providers.Cache != nil {
		srv.HealthProbes = append(srv.HealthProbes, providers.Cache)
	}
	srv.Closers = append(srv.Closers,
		stopMetrics,
		func() {
			if err := providers.Close(); err != nil {
				logger.Warn("closing road cache", "error", err)
			}
		},
		pool.Close,
	)

	if isLambdaEnvironment() {
		runLambda(srv.Handler(), logger)
		return nil
	}
	return runHTTPServer(ctx, srv, cfg, logger)
}

// newServer builds the HTTP server around an override service and mounts the
// routes.
func newServer(
	cfg *config.Config,
	logger *slog.Logger,
	svc handlers.OverrideServiceInterface,
	collector core.MetricsCollector,
	gatherer prometheus.Gatherer,
) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = collector
	srv.Gatherer = gatherer

	overrideHandler := handlers.NewOverrideHandler(svc, logger.With("component", "override_handler"))
	srv.RouteRegistrars = append(srv.RouteRegistrars, overrideHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// secretProvider picks where _SSM_PARAM pointers are resolved. SECRET_SOURCE=env
// reads them from the environment so a stack without SSM can still run the
// non-local path.
func secretProvider(getenv func(string) string) config.SecretProvider {
	if getenv("SECRET_SOURCE") == "env" {
		return config.NewEnvVarProvider()
	}
	return config.NewSSMProvider(getenv("AWS_REGION"), getenv("AWS_ENDPOINT_URL"))
}

func locatorConfig(c config.SnapConfig) snap.Config {
	return snap.Config{
		InitialRadiusM:  c.InitialRadiusM,
		MaxRadiusM:      c.MaxRadiusM,
		GrowthFactor:    c.GrowthFactor,
		RetryDelay:      c.RetryDelay,
		ProviderTimeout: c.ProviderTimeout,
	}
}

func policyConfig(c config.SnapConfig) snap.PolicyConfig {
	return snap.PolicyConfig{
		ExtrapolationDistanceM: c.ExtrapolationDistanceM,
		HeadingToleranceDeg:    c.HeadingToleranceDeg,
		DefaultCountry:         c.DefaultCountry,
	}
}

func batchConfig(c config.BatchConfig) override.Config {
	return override.Config{
		MaxItems:              c.MaxItems,
		Concurrency:           c.Concurrency,
		AcceptHeadingRejected: c.AcceptHeadingRejected,
		StopSignSnap:          c.StopSignSnap,
		PersistReserve:        c.PersistReserve,
		PersistTimeout:        c.PersistTimeout,
	}
}

// runHTTPServer serves until ctx is cancelled, then shuts down gracefully.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// In-flight batches get the configured grace period to finish.
	logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
