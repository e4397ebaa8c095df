// Package observability provides structured logging, Prometheus and OpenTelemetry
// metrics, tracing setup, health checks and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subscription_id", id).Info("renewal charged")
//
// Request handlers take the request-scoped logger from the context:
//
//	observability.FromContext(r.Context()).WithError(err).Error("plan list lookup failed")
//
// # Metrics
//
// Metrics (Prometheus) and OTelMetrics (OpenTelemetry) both implement Recorder;
// Recorders fans one measurement out to several:
//
//	rec := observability.Recorders{promMetrics, otelMetrics}
//	rec.RecordRenewalCharge(ctx, "due", observability.ChargeSucceeded)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("database", true, store.HealthCheck)
//	checker.AddCheck("redis", false, redisClient.Ping)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "subscriptions",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
