package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, ctx context.Context, detailedLabels bool) *Provider {
	t.Helper()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  detailedLabels,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	return provider
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/callback", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/callback/{state}", 404, 50*time.Millisecond)
}

func TestMetrics_RecordCallbackReceived(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordCallbackReceived(ctx, OutcomeSuccess)
	metrics.RecordCallbackReceived(ctx, OutcomeFailure)
	metrics.RecordCallbackReceived(ctx, OutcomeRejected)
}

func TestMetrics_RecordCallbackReceivedWithError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test without detailed labels
	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic - error code should be ignored
	metrics.RecordCallbackReceivedWithError(ctx, OutcomeFailure, "access_denied")
}

func TestMetrics_RecordCallbackReceivedWithError_DetailedLabels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test with detailed labels
	provider := newTestProvider(t, ctx, true)

	metrics := provider.Metrics()

	// Should not panic - error code should be included
	metrics.RecordCallbackReceivedWithError(ctx, OutcomeFailure, "access_denied")
	metrics.RecordCallbackReceivedWithError(ctx, OutcomeSuccess, "")
}

func TestMetrics_RecordCallbackConsumed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordCallbackConsumed(ctx, 2*time.Second)
	metrics.RecordCallbackConsumed(ctx, 0)
}

func TestMetrics_RecordCallbacksExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordCallbacksExpired(ctx, 3)
	metrics.RecordCallbacksExpired(ctx, 0)
}

func TestMetrics_RecordPoll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.RecordPoll(ctx, PollHit)
	metrics.RecordPoll(ctx, PollMiss)
}

func TestMetrics_SetActiveCallbacks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()

	// Should not panic
	metrics.SetActiveCallbacks(ctx, 5)
	metrics.SetActiveCallbacks(ctx, 0)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/callback", 200, 100*time.Millisecond)
	metrics.RecordCallbackReceived(ctx, OutcomeSuccess)
	metrics.RecordCallbackReceivedWithError(ctx, OutcomeFailure, "access_denied")
	metrics.RecordCallbackConsumed(ctx, time.Second)
	metrics.RecordCallbacksExpired(ctx, 1)
	metrics.RecordPoll(ctx, PollHit)
	metrics.SetActiveCallbacks(ctx, 1)
}

func TestMetrics_NoOp_NilReceiver(t *testing.T) {
	ctx := context.Background()

	var metrics *Metrics

	// A nil recorder must be safe; the broker treats nil as disabled
	metrics.RecordHTTPRequest(ctx, "GET", "/callback", 200, 100*time.Millisecond)
	metrics.RecordCallbackReceived(ctx, OutcomeSuccess)
	metrics.RecordCallbackConsumed(ctx, time.Second)
	metrics.RecordCallbacksExpired(ctx, 1)
	metrics.RecordPoll(ctx, PollMiss)
	metrics.SetActiveCallbacks(ctx, 1)
}
