// Package server provides the HTTP surface of the callback broker: the
// callback listener, the consumer poll API, health probes, and the
// dedicated metrics server.
//
// # Key Components
//
// CallbackServer terminates the identity provider's browser redirect on
// /callback and stores the outcome with the broker. Consumers retrieve
// results through GET /api/callback/{state}, which consumes atomically:
// a result is delivered to exactly one poll and absent ever after. The
// browser only ever sees a terminal HTML page; authorization codes travel
// to consumers exclusively through the poll API.
//
// HealthChecker serves Kubernetes probes (/healthz, /readyz,
// /healthz/detailed). Readiness is flipped off at the start of a graceful
// shutdown so load balancers drain before the listener closes.
//
// MetricsServer exposes /metrics on a dedicated port, keeping operational
// metrics off the public callback listener.
//
// # Security Notes
//
//   - Authorization codes never appear in logs; log output carries a
//     length-masked placeholder instead.
//   - State tokens are logged as a truncated hash, never verbatim.
//   - Poll misses are uniform: an unknown, expired, and already consumed
//     state are indistinguishable to callers, so the API cannot be used to
//     probe for foreign tokens.
//   - The poll API answers CORS preflights and sets a wildcard origin; the
//     state token itself is the only capability needed to collect a result.
package server
