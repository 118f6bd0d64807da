package broker

import (
	"context"
	"time"
)

// Store persists pending callback results between the provider redirect and
// the consumer poll. Implementations must make Take atomic: two concurrent
// polls for the same state token must never both receive the result.
type Store interface {
	// Put stores a result under its state token, replacing any pending
	// result for the same token and restarting its expiry window.
	Put(ctx context.Context, res Result, ttl time.Duration) error

	// Take atomically retrieves and removes the result for a state token.
	// It returns found=false when no live result exists; absent, expired
	// and already-consumed tokens are indistinguishable to the caller.
	Take(ctx context.Context, state string) (res Result, found bool, err error)

	// Prune removes expired results and returns how many were dropped.
	// Backends with server-side expiry may report zero.
	Prune(ctx context.Context) (int, error)

	// Len returns the number of live (unexpired, unconsumed) results.
	Len(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
