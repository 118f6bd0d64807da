package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with request paths.

// NormalizeRoute maps a request path to its route template so metric labels
// stay bounded. Every state token would otherwise become its own label value.
//
// Example:
//
//	NormalizeRoute("/api/callback/af0ifjsldkj")  // "/api/callback/{state}"
//	NormalizeRoute("/callback")                   // "/callback"
//	NormalizeRoute("/nonexistent")                // "unknown"
func NormalizeRoute(path string) string {
	switch path {
	case "/callback", "/health", "/healthz", "/healthz/detailed", "/readyz", "/metrics":
		return path
	}

	if strings.HasPrefix(path, "/api/callback/") || path == "/api/callback" {
		return "/api/callback/{state}"
	}

	return "unknown"
}

// Common operation types for broker metrics.
// Status, outcome, and poll constants are defined in config.go.
const (
	OperationReceive = "receive"
	OperationConsume = "consume"
	OperationSweep   = "sweep"
	OperationWait    = "wait"
)
