package instrumentation

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// CallbackEvent captures one callback lifecycle event for audit logging.
// This provides an audit trail for every result the broker accepts, delivers,
// rejects or expires.
//
// # Privacy Considerations
//
// The State field contains the raw correlation token, which behaves like a
// short-lived secret. When logging, consider:
//   - Using StateHash for metrics-compatible general logs
//   - Only logging the raw token in audit-specific log streams
//   - Ensuring audit logs have appropriate access controls
type CallbackEvent struct {
	// Action is the lifecycle step: received, consumed, expired, rejected
	Action string

	// State is the raw correlation token (treated as a secret)
	State string

	// StateHash is the anonymized token for cardinality-safe logging
	StateHash string

	// Outcome is the callback outcome (success, failure) where known
	Outcome string

	// Error holds the rejection or failure reason, if any
	Error string

	// Count carries the batch size for expiry events
	Count int

	// Tracing context
	TraceID string
	SpanID  string
}

// WithSpanContext extracts trace context from the current span.
func (e *CallbackEvent) WithSpanContext(ctx context.Context) *CallbackEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// LogAttrs returns slog attributes for structured logging.
// This provides a consistent set of fields for all callback event logs.
//
// # Cardinality
//
// This function uses the anonymized state hash for metrics-compatible
// logging. For full audit logging, use LogAuditAttrs.
func (e *CallbackEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
	}

	// Add optional fields only if present
	if e.StateHash != "" {
		attrs = append(attrs, slog.String("state_hash", e.StateHash))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Count > 0 {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes for full audit logging.
// This includes the raw state token for incident forensics.
//
// # Security Warning
//
// This method includes the raw correlation token. Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
//   - Retained according to compliance requirements
func (e *CallbackEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
	}

	// Add all optional fields
	if e.State != "" {
		attrs = append(attrs, slog.String("state", e.State))
	}
	if e.StateHash != "" {
		attrs = append(attrs, slog.String("state_hash", e.StateHash))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Count > 0 {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	return attrs
}

// AuditLogger provides structured audit logging for callback lifecycle events.
// It wraps slog.Logger with convenience methods for logging broker operations.
type AuditLogger struct {
	logger        *slog.Logger
	includeTokens bool
	enabled       bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, raw state tokens are not included in logs (anonymized hashes
// are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:        logger,
		includeTokens: false,
		enabled:       true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:        logger,
		includeTokens: config.IncludeTokens,
		enabled:       config.Enabled,
	}
}

// SetIncludeTokens sets whether to include raw state tokens in audit logs.
func (al *AuditLogger) SetIncludeTokens(include bool) {
	al.includeTokens = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogCallbackEvent logs one callback lifecycle event.
// Trace context is taken from ctx when the event does not carry its own.
// If the logger is configured with IncludeTokens, raw state tokens are
// logged; otherwise, only anonymized hashes are used.
func (al *AuditLogger) LogCallbackEvent(ctx context.Context, ev CallbackEvent) {
	if al == nil || !al.enabled {
		return
	}

	if ev.TraceID == "" {
		ev.WithSpanContext(ctx)
	}

	// Choose between raw-token and anonymized logging based on configuration
	var attrs []slog.Attr
	if al.includeTokens {
		attrs = ev.LogAuditAttrs()
	} else {
		attrs = ev.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ev.Action == ActionRejected {
		al.logger.Warn("callback_rejected", args...)
	} else {
		al.logger.Info("callback_"+ev.Action, args...)
	}
}
