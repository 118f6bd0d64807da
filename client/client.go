package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teemow/callbackd/internal/logging"
)

const (
	// DefaultPollInterval is the delay between retrieval attempts in Wait.
	DefaultPollInterval = time.Second

	// DefaultHTTPTimeout bounds a single retrieval request.
	DefaultHTTPTimeout = 5 * time.Second
)

// ErrWaitTimeout is returned by Wait when no callback arrived within the
// caller's budget.
var ErrWaitTimeout = errors.New("timed out waiting for callback")

// Config describes how to reach a callback service.
type Config struct {
	// BaseURL is the root of the callback service, e.g. "http://localhost:8000".
	BaseURL string

	// PollInterval is the delay between retrieval attempts in Wait.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// HTTPTimeout bounds each retrieval request. Only used when HTTPClient
	// is nil. Defaults to DefaultHTTPTimeout.
	HTTPTimeout time.Duration

	// HTTPClient overrides the client used for retrieval requests.
	HTTPClient *http.Client

	// Logger receives debug output for retried polls. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client retrieves redirect outcomes from a callback service.
type Client struct {
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates a client for the callback service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollInterval: pollInterval,
		httpClient:   httpClient,
		logger:       logging.WithComponent(logger, "client"),
	}, nil
}

// Poll makes a single retrieval attempt for state.
//
// It returns the result when the callback has arrived, (nil, nil) when it
// has not, and an error for transport failures or unexpected statuses. A
// successful Poll consumes the entry, so a second call for the same state
// reports not-found.
func (c *Client) Poll(ctx context.Context, state string) (*Result, error) {
	if state == "" {
		return nil, fmt.Errorf("state must not be empty")
	}

	endpoint := c.baseURL + "/api/callback/" + url.PathEscape(state)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach callback service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, fmt.Errorf("failed to decode callback response: %w", err)
		}
		// The wire status only says retrieval worked. Report the
		// authorization outcome instead.
		if res.Error != "" {
			res.Status = StatusError
		} else {
			res.Status = StatusSuccess
		}
		return &res, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status %d from callback service", resp.StatusCode)
	}
}

// Wait polls until the callback for state arrives or the budget runs out.
//
// The first attempt happens immediately, later ones on the poll interval.
// Transport failures and unexpected statuses are retried rather than
// returned, since the service may still be starting when the user begins
// the flow. Wait returns ErrWaitTimeout once timeout elapses and ctx.Err()
// when the caller cancels. A timeout of zero or less leaves ctx as the only
// bound.
func (c *Client) Wait(ctx context.Context, state string, timeout time.Duration) (*Result, error) {
	if state == "" {
		return nil, fmt.Errorf("state must not be empty")
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := c.logger.With(logging.StateHash(state))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	attempt := 0
	for {
		attempt++
		res, err := c.Poll(waitCtx, state)
		if err == nil && res != nil {
			return res, nil
		}
		if err != nil && waitCtx.Err() == nil {
			logger.Debug("poll attempt failed, will retry",
				slog.Int("attempt", attempt),
				logging.Err(err))
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrWaitTimeout
		case <-ticker.C:
		}
	}
}
