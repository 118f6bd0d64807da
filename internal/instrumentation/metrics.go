package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrOutcome = "outcome"
	attrResult  = "result"
	attrError   = "error"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Callback lifecycle metrics
	callbacksReceivedTotal metric.Int64Counter
	callbacksConsumedTotal metric.Int64Counter
	callbacksExpiredTotal  metric.Int64Counter
	callbackAge            metric.Float64Histogram
	activeCallbacks        metric.Int64Gauge

	// Consumer poll metrics
	pollTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Callback Lifecycle Metrics
	m.callbacksReceivedTotal, err = meter.Int64Counter(
		"callbacks_received_total",
		metric.WithDescription("Total number of provider callbacks received"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbacks_received_total counter: %w", err)
	}

	m.callbacksConsumedTotal, err = meter.Int64Counter(
		"callbacks_consumed_total",
		metric.WithDescription("Total number of callback results delivered to consumers"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbacks_consumed_total counter: %w", err)
	}

	m.callbacksExpiredTotal, err = meter.Int64Counter(
		"callbacks_expired_total",
		metric.WithDescription("Total number of callback results dropped unconsumed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callbacks_expired_total counter: %w", err)
	}

	m.callbackAge, err = meter.Float64Histogram(
		"callback_age_seconds",
		metric.WithDescription("Age of callback results at consumption time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0, 600.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback_age_seconds histogram: %w", err)
	}

	m.activeCallbacks, err = meter.Int64Gauge(
		"active_callbacks",
		metric.WithDescription("Number of callback results waiting for a consumer"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_callbacks gauge: %w", err)
	}

	// Consumer Poll Metrics
	m.pollTotal, err = meter.Int64Counter(
		"callback_poll_total",
		metric.WithDescription("Total number of consumer polls"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback_poll_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route, status code, and duration.
// Pass the route template (see NormalizeRoute), never the raw request path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, route),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCallbackReceived records one provider callback with its outcome.
// Outcome should be one of: "success", "failure", "rejected"
func (m *Metrics) RecordCallbackReceived(ctx context.Context, outcome string) {
	if m == nil || m.callbacksReceivedTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}

	m.callbacksReceivedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallbackReceivedWithError records a provider callback together with
// the OAuth error code the provider sent. The error code label is only
// included when detailedLabels is enabled; error codes are provider
// controlled and therefore unbounded.
func (m *Metrics) RecordCallbackReceivedWithError(ctx context.Context, outcome, errorCode string) {
	if m == nil || m.callbacksReceivedTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && errorCode != "" {
		attrs = append(attrs, attribute.String(attrError, errorCode))
	}

	m.callbacksReceivedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCallbackConsumed records one delivered result and how long it waited.
func (m *Metrics) RecordCallbackConsumed(ctx context.Context, age time.Duration) {
	if m == nil || m.callbacksConsumedTotal == nil || m.callbackAge == nil {
		return // Instrumentation not initialized
	}

	m.callbacksConsumedTotal.Add(ctx, 1)
	m.callbackAge.Record(ctx, age.Seconds())
}

// RecordCallbacksExpired records results dropped by the expiry sweeper.
func (m *Metrics) RecordCallbacksExpired(ctx context.Context, count int) {
	if m == nil || m.callbacksExpiredTotal == nil {
		return // Instrumentation not initialized
	}

	m.callbacksExpiredTotal.Add(ctx, int64(count))
}

// RecordPoll records one consumer poll with its result.
// Result should be one of: "hit", "miss"
func (m *Metrics) RecordPoll(ctx context.Context, result string) {
	if m == nil || m.pollTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.pollTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SetActiveCallbacks records the current number of pending results.
func (m *Metrics) SetActiveCallbacks(ctx context.Context, count int) {
	if m == nil || m.activeCallbacks == nil {
		return // Instrumentation not initialized
	}

	m.activeCallbacks.Record(ctx, int64(count))
}
