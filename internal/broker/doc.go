// Package broker implements the callback brokering core: an expiring,
// single-read store mapping OAuth state tokens to redirect outcomes.
//
// The provider-facing side stores each redirect outcome under its state
// token via Receive. The consumer-facing side collects it via Consume,
// which atomically removes the result so it can be delivered at most once.
// Results a consumer never collects expire after a TTL and are dropped by
// a background sweeper.
//
// Two Store backends exist: MemoryStore for single-instance deployments
// and ValkeyStore for sharing one callback namespace across replicas.
package broker
