package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teemow/callbackd/internal/instrumentation"
)

// newTestBroker creates a broker on an in-memory store with a sweep interval
// long enough that the sweeper never fires during a test.
func newTestBroker(t *testing.T) (*Broker, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore(slog.Default())
	b := New(store, Config{
		TTL:           10 * time.Minute,
		SweepInterval: time.Hour,
		Logger:        slog.Default(),
	})
	t.Cleanup(b.Stop)

	return b, store
}

func TestBroker_ReceiveConsume(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	err := b.Receive(ctx, Result{
		State: "state-123",
		Code:  "auth-code-456",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	res, found, err := b.Consume(ctx, "state-123")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !found {
		t.Fatal("Consume() found = false, want true")
	}

	if res.Code != "auth-code-456" {
		t.Errorf("Code = %s, want auth-code-456", res.Code)
	}
	if !res.Succeeded() {
		t.Error("Succeeded() = false, want true")
	}
	if res.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set by Receive")
	}

	// Consuming again must miss; delivery is at most once
	_, found, err = b.Consume(ctx, "state-123")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if found {
		t.Error("Consume() should not find an already consumed result")
	}
}

func TestBroker_Receive_ErrorCallback(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	err := b.Receive(ctx, Result{
		State:            "state-123",
		Error:            "access_denied",
		ErrorDescription: "The user denied the request",
	})
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	res, found, err := b.Consume(ctx, "state-123")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !found {
		t.Fatal("Consume() found = false, want true")
	}

	if res.Succeeded() {
		t.Error("Succeeded() = true, want false for denied callback")
	}
	if res.Error != "access_denied" {
		t.Errorf("Error = %s, want access_denied", res.Error)
	}
	if res.ErrorDescription != "The user denied the request" {
		t.Errorf("ErrorDescription = %s, want full description", res.ErrorDescription)
	}
}

func TestBroker_Receive_Rejected(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		result  Result
		wantErr error
	}{
		{
			name:    "missing state",
			result:  Result{Code: "auth-code"},
			wantErr: ErrEmptyState,
		},
		{
			name:    "no code and no error",
			result:  Result{State: "state-123"},
			wantErr: ErrNoResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Receive(ctx, tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Receive() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing should have been stored
	count, err := b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after rejected callbacks", count)
	}
}

func TestBroker_Receive_Replace(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Receive(ctx, Result{State: "state-123", Code: "first"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := b.Receive(ctx, Result{State: "state-123", Code: "second"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	res, found, err := b.Consume(ctx, "state-123")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !found {
		t.Fatal("Consume() found = false, want true")
	}
	if res.Code != "second" {
		t.Errorf("Code = %s, want second (last callback wins)", res.Code)
	}

	// The replaced result must not be deliverable afterwards
	_, found, _ = b.Consume(ctx, "state-123")
	if found {
		t.Error("Consume() should not find a result after the replacement was consumed")
	}
}

func TestBroker_Consume_Concurrent(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Receive(ctx, Result{State: "state-123", Code: "auth-code"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	const pollers = 16

	var wins atomic.Int64
	errCh := make(chan error, pollers)
	start := make(chan struct{})

	wg := sync.WaitGroup{}
	wg.Add(pollers)
	for i := 0; i < pollers; i++ {
		go func() {
			defer wg.Done()
			<-start
			res, found, err := b.Consume(ctx, "state-123")
			if err != nil {
				errCh <- err
				return
			}
			if found {
				if res.Code != "auth-code" {
					errCh <- errors.New("winner saw wrong code " + res.Code)
					return
				}
				wins.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("Consume() error = %v", err)
	}

	// Exactly one poller receives the result; the rest see a miss
	if got := wins.Load(); got != 1 {
		t.Errorf("got %d winners for %d concurrent consumers, want exactly 1", got, pollers)
	}
}

func TestBroker_Consume_Expired(t *testing.T) {
	b, store := newTestBroker(t)
	ctx := context.Background()

	// Plant an entry that is already past its TTL; no sweep has run
	if err := store.Put(ctx, Result{State: "state-123", Code: "code"}, -time.Minute); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, found, err := b.Consume(ctx, "state-123")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if found {
		t.Error("Consume() should not deliver an expired result between sweeps")
	}
}

func TestBroker_Consume_KeyIsolation(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	if err := b.Receive(ctx, Result{State: "state-a", Code: "code-a"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if err := b.Receive(ctx, Result{State: "state-b", Code: "code-b"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	res, found, err := b.Consume(ctx, "state-b")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !found {
		t.Fatal("Consume() found = false, want true")
	}
	if res.Code != "code-b" {
		t.Errorf("Code = %s, want code-b", res.Code)
	}

	// Consuming one state leaves the other untouched
	res, found, err = b.Consume(ctx, "state-a")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !found {
		t.Fatal("Consume() found = false for the untouched state, want true")
	}
	if res.Code != "code-a" {
		t.Errorf("Code = %s, want code-a", res.Code)
	}
}

func TestBroker_Consume_EmptyState(t *testing.T) {
	b, _ := newTestBroker(t)

	_, found, err := b.Consume(context.Background(), "")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if found {
		t.Error("Consume() should not find anything for an empty state")
	}
}

func TestBroker_Consume_UnknownState(t *testing.T) {
	b, _ := newTestBroker(t)

	// Unknown, expired and consumed tokens are indistinguishable to callers
	_, found, err := b.Consume(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if found {
		t.Error("Consume() should not find an unknown state")
	}
}

func TestBroker_ActiveCount(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	count, err := b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("ActiveCount() = %d, want 0", count)
	}

	b.Receive(ctx, Result{State: "state-1", Code: "code"})
	b.Receive(ctx, Result{State: "state-2", Error: "access_denied"})

	count, err = b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("ActiveCount() = %d, want 2", count)
	}

	b.Consume(ctx, "state-1")

	count, err = b.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("ActiveCount() = %d, want 1", count)
	}
}

func TestBroker_Sweep(t *testing.T) {
	store := NewMemoryStore(slog.Default())
	b := New(store, Config{
		TTL:           10 * time.Minute,
		SweepInterval: time.Hour,
		Logger:        slog.Default(),
	})
	defer b.Stop()

	ctx := context.Background()

	// Plant an already expired entry directly in the store
	store.Put(ctx, Result{State: "expired", Code: "code"}, -time.Minute)
	store.Put(ctx, Result{State: "valid", Code: "code"}, 10*time.Minute)

	b.sweep()

	count, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Len() = %d after sweep, want 1", count)
	}

	// The valid entry survived the sweep
	_, found, _ := store.Take(ctx, "valid")
	if !found {
		t.Error("Valid result should survive the sweep")
	}
}

func TestBroker_Defaults(t *testing.T) {
	store := NewMemoryStore(slog.Default())
	b := New(store, Config{})
	defer b.Stop()

	if b.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", b.TTL(), DefaultTTL)
	}
	if b.sweepInterval != DefaultSweepInterval {
		t.Errorf("sweepInterval = %v, want %v", b.sweepInterval, DefaultSweepInterval)
	}
}

func TestBroker_WithInstrumentation(t *testing.T) {
	ctx := context.Background()

	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
		Enabled:         true,
		ServiceName:     "callbackd-test",
		MetricsExporter: instrumentation.ExporterStdout,
		TracingExporter: instrumentation.ExporterNone,
	})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	t.Cleanup(func() {
		if err := provider.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})

	store := NewMemoryStore(slog.Default())
	b := New(store, Config{
		TTL:           10 * time.Minute,
		SweepInterval: time.Hour,
		Logger:        slog.Default(),
		Metrics:       provider.Metrics(),
		Audit:         instrumentation.NewAuditLogger(slog.Default()),
	})
	t.Cleanup(b.Stop)

	// Full lifecycle with metrics and audit wired in must not panic
	if err := b.Receive(ctx, Result{State: "state-123", Code: "auth-code"}); err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if _, found, err := b.Consume(ctx, "state-123"); err != nil || !found {
		t.Fatalf("Consume() = found %v, error %v", found, err)
	}
	if err := b.Receive(ctx, Result{}); err == nil {
		t.Error("Receive() should reject an empty result")
	}
	b.sweep()
}

func TestBroker_Stop(t *testing.T) {
	store := NewMemoryStore(slog.Default())
	b := New(store, Config{SweepInterval: time.Hour})

	b.Stop()

	// The store keeps working after the sweeper is stopped
	ctx := context.Background()
	if err := b.Receive(ctx, Result{State: "state-123", Code: "code"}); err != nil {
		t.Fatalf("Receive() after Stop() error = %v", err)
	}
	if _, found, err := b.Consume(ctx, "state-123"); err != nil || !found {
		t.Fatalf("Consume() after Stop() = found %v, error %v", found, err)
	}
}
