// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the callbackd broker.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests and the callback lifecycle
//   - Distributed tracing for request flows and storage backend calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, route, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Callback Lifecycle Metrics:
//   - callbacks_received_total: Counter of provider callbacks by outcome
//   - callbacks_consumed_total: Counter of results delivered to consumers
//   - callbacks_expired_total: Counter of results dropped unconsumed
//   - callback_age_seconds: Histogram of result age at consumption time
//   - active_callbacks: Gauge of results waiting for a consumer
//
// Consumer Poll Metrics:
//   - callback_poll_total: Counter of consumer polls by result (hit, miss)
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling (http <route>)
//   - Broker operations (broker.receive, broker.consume)
//   - Storage backend calls (store.<backend>.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: callbackd)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "callbackd",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "GET", "/callback", 200, time.Since(start))
//
//	// Record a received callback
//	recorder.RecordCallbackReceived(ctx, instrumentation.OutcomeSuccess)
//
//	// Record a consumer poll
//	recorder.RecordPoll(ctx, instrumentation.PollHit)
package instrumentation
