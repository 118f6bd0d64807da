package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/callbackd/internal/instrumentation"
	"github.com/teemow/callbackd/internal/logging"
)

// memoryEntry holds a pending result together with its expiry deadline
type memoryEntry struct {
	result    Result
	expiresAt time.Time
}

// MemoryStore keeps pending callback results in process memory.
// It is the default backend for single-instance deployments; state is lost
// on restart and not shared between replicas.
type MemoryStore struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewMemoryStore creates a new in-memory callback store.
// The store itself is passive; expired entries are dropped lazily on access
// and in batches when the owning broker calls Prune.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		logger:  logging.WithBackend(logger, "memory"),
	}
}

// Put stores a result under its state token.
// A second callback for the same token replaces the first and restarts the
// expiry window.
func (s *MemoryStore) Put(ctx context.Context, res Result, ttl time.Duration) error {
	// The span opens before the lock so it also covers lock wait
	_, span := instrumentation.StartStoreSpan(ctx, "memory", "put")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	s.entries[res.State] = memoryEntry{result: res, expiresAt: expiresAt}
	s.logger.Debug("Stored callback result",
		logging.StateHash(res.State),
		logging.Outcome(res.Outcome()),
		slog.Time("expires_at", expiresAt),
	)

	return nil
}

// Take retrieves and immediately deletes the result for a state token.
// This prevents replay: a result can be delivered at most once, and a token
// that is unknown, expired or already consumed looks the same to the caller.
func (s *MemoryStore) Take(ctx context.Context, state string) (Result, bool, error) {
	_, span := instrumentation.StartStoreSpan(ctx, "memory", "take")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[state]
	if !exists {
		return Result{}, false, nil
	}

	// Expired entries that the sweeper has not reached yet are treated as
	// absent, but dropped now so they cannot linger
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, state)
		s.logger.Debug("Dropped expired callback result on read", logging.StateHash(state))
		return Result{}, false, nil
	}

	// Immediately delete the entry so a second poll cannot replay it
	delete(s.entries, state)

	s.logger.Info("Callback result consumed and deleted",
		logging.StateHash(state),
		logging.Outcome(entry.result.Outcome()),
	)

	return entry.result, true, nil
}

// Prune removes expired results and returns how many were dropped.
// It collects candidates under a read lock and re-validates each one under
// the write lock, so a token refreshed in between is not lost.
func (s *MemoryStore) Prune(ctx context.Context) (int, error) {
	_, span := instrumentation.StartStoreSpan(ctx, "memory", "prune")
	defer span.End()

	s.mu.RLock()

	expired := []string{}
	now := time.Now()
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			expired = append(expired, state)
		}
	}

	s.mu.RUnlock()

	if len(expired) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check expiration under write lock; the entry might have been
	// replaced by a fresh callback between the two locks
	deleted := 0
	currentTime := time.Now()
	for _, state := range expired {
		if entry, ok := s.entries[state]; ok {
			if currentTime.After(entry.expiresAt) {
				delete(s.entries, state)
				deleted++
			}
		}
	}

	if deleted > 0 {
		s.logger.Debug("Cleaned up expired callback results", slog.Int("deleted", deleted))
	}

	return deleted, nil
}

// Len returns the number of live results currently pending.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	count := 0
	for _, entry := range s.entries {
		if now.Before(entry.expiresAt) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
