// Package main is the entry point for the vault backend. It composes zap-in,
// zap-out and claim transaction bundles for the configured portfolios and
// keeps subscriptions, referrals, balance history and the portfolio cache.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/vault-bff/internal/api"
	"github.com/yourorg/vault-bff/internal/config"
	"github.com/yourorg/vault-bff/internal/tracing"
)

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *api.Metrics {
	return api.NewMetrics(prometheus.DefaultRegisterer)
}

// main is the entry point for the application
func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	// Configure logging
	setupLogging(cfg)

	shutdownTracer := tracing.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := buildServer(ctx, cfg, registerMetrics())
	if err != nil {
		logrus.Fatalf("Error initializing server: %v", err)
	}
	defer cleanup()

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"chains":      len(cfg.RPCEndpoints()),
		"test_mode":   cfg.TestMode,
		"signing":     cfg.SigningKey != "",
		"cache":       cfg.CacheBackend,
		"postgres":    cfg.DatabaseURL != "",
		"rate_limit":  cfg.RateLimit,
		"max_impact":  cfg.MaxPriceImpact,
		"otel_export": cfg.OtelEndpoint != "",
	}).Info("Server initialized")

	if err := server.Start(ctx, ":"+cfg.Port); err != nil {
		logrus.Errorf("Server stopped with error: %v", err)
	}
}

// setupLogging configures the logging for the application
func setupLogging(cfg config.Config) {
	// Set log formatter based on environment
	switch cfg.LogFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Set log level based on environment
	switch cfg.LogLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}
