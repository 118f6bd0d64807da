package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := New(Config{
		BaseURL:      baseURL,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func writeHit(w http.ResponseWriter, state, code string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "success",
		"state":     state,
		"auth_code": code,
	})
}

func writeMiss(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": "Callback not found or expired",
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid config",
			config: Config{BaseURL: "http://localhost:8000"},
		},
		{
			name:    "missing base URL",
			config:  Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:8000/"})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", c.baseURL, "trailing slash should be trimmed")
	assert.Equal(t, DefaultPollInterval, c.pollInterval)
	require.NotNil(t, c.httpClient)
	assert.Equal(t, DefaultHTTPTimeout, c.httpClient.Timeout)
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/callback/state-123", r.URL.Path)
		writeHit(w, "state-123", "auth-code-456")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Poll(context.Background(), "state-123")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "state-123", res.State)
	assert.Equal(t, "auth-code-456", res.AuthCode)
	assert.True(t, res.Succeeded())
}

func TestPoll_ErrorOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// The service reports retrieval success even for denied flows
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":            "success",
			"state":             "state-123",
			"error":             "access_denied",
			"error_description": "The user denied the request",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Poll(context.Background(), "state-123")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusError, res.Status, "error outcome should be surfaced as StatusError")
	assert.Equal(t, "access_denied", res.Error)
	assert.Equal(t, "The user denied the request", res.ErrorDescription)
	assert.False(t, res.Succeeded())
}

func TestPoll_NotYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMiss(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Poll(context.Background(), "state-123")
	require.NoError(t, err, "a miss is not an error")
	assert.Nil(t, res)
}

func TestPoll_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Poll(context.Background(), "state-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestPoll_EmptyState(t *testing.T) {
	c := newTestClient(t, "http://localhost:8000")

	_, err := c.Poll(context.Background(), "")
	require.Error(t, err)
}

func TestPoll_EscapesState(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		writeMiss(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Poll(context.Background(), "../other")
	require.NoError(t, err)
	assert.Equal(t, "/api/callback/..%2Fother", gotPath, "state must not traverse out of the API path")
}

func TestWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHit(w, "state-123", "auth-code-456")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Wait(context.Background(), "state-123", time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "auth-code-456", res.AuthCode)
}

func TestWait_RetriesUntilHit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeMiss(w)
			return
		}
		writeHit(w, "state-123", "auth-code-456")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Wait(context.Background(), "state-123", 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "auth-code-456", res.AuthCode)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeHit(w, "state-123", "auth-code-456")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	res, err := c.Wait(context.Background(), "state-123", 2*time.Second)
	require.NoError(t, err, "a transient server error should be retried")
	require.NotNil(t, res)
	assert.Equal(t, "auth-code-456", res.AuthCode)
}

func TestWait_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMiss(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	start := time.Now()
	_, err := c.Wait(context.Background(), "state-123", 50*time.Millisecond)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaitTimeout), "error = %v, want ErrWaitTimeout", err)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "the full budget should be spent before giving up")
	assert.Less(t, elapsed, time.Second, "timeout should be prompt")
}

func TestWait_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMiss(w)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Wait(ctx, "state-123", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "error = %v, want context.Canceled", err)
	assert.Less(t, time.Since(start), time.Second, "cancellation should be prompt")
}

func TestWait_EmptyState(t *testing.T) {
	c := newTestClient(t, "http://localhost:8000")

	_, err := c.Wait(context.Background(), "", time.Second)
	require.Error(t, err)
}
