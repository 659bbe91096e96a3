// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Logging
//
// Two loggers are used. HTTP handlers log through Logger, a slog JSON
// wrapper carried in the request context:
//
//	logger := observability.FromContext(r.Context())
//	logger.WithField("service_account_id", id).Info("Secret rotated")
//
// Long-running components take a *logrus.Logger built by NewComponentLogger.
// Client secrets, hashes and salts are never logged.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.CommandsTotal.WithLabelValues("rotate_secret", "applied").Inc()
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//	    Enabled:     true,
//	    Endpoint:    "otel-collector:4317",
//	    ServiceName: "warden",
//	}, logger)
//	defer providers.Shutdown(ctx)
//
// # Health
//
//	checker := observability.NewHealthChecker(version, db, redisClient)
//	observability.RegisterHealthRoutes(healthMux, checker)
package observability
