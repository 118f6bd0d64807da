// Package logging provides structured logging utilities for the callbackd application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Secret sanitization (state token anonymization, code masking)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "broker.receive")
//	logger.Info("callback received",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("callback consumed",
//	    logging.StateHash(state))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - State tokens are hashed to prevent leakage while allowing correlation
//   - Authorization codes are never logged directly
package logging
