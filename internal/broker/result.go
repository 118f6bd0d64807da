package broker

import (
	"errors"
	"time"
)

// ErrEmptyState is returned when a callback carries no state token
var ErrEmptyState = errors.New("state parameter is required")

// ErrNoResult is returned when a callback carries neither an authorization
// code nor a provider error
var ErrNoResult = errors.New("callback must carry an authorization code or an error")

// Outcome values for received callbacks.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Result is the outcome of one OAuth authorization redirect, keyed by the
// state token the consumer minted when it started the flow.
type Result struct {
	// State is the opaque correlation token from the authorization request
	State string `json:"state"`

	// Code is the authorization code issued by the provider on success
	Code string `json:"auth_code,omitempty"`

	// Error is the OAuth error code (e.g. "access_denied") on failure
	Error string `json:"error,omitempty"`

	// ErrorDescription provides additional information about the error
	ErrorDescription string `json:"error_description,omitempty"`

	// ReceivedAt is when the broker accepted the callback
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks that the result can be brokered at all.
// A result without a state token cannot be correlated, and a result with
// neither a code nor an error carries nothing worth delivering.
func (r Result) Validate() error {
	if r.State == "" {
		return ErrEmptyState
	}
	if r.Code == "" && r.Error == "" {
		return ErrNoResult
	}
	return nil
}

// Succeeded reports whether the provider granted authorization.
// When a redirect carries both a code and an error the error wins,
// so a half-failed callback is never mistaken for a grant.
func (r Result) Succeeded() bool {
	return r.Error == "" && r.Code != ""
}

// Outcome returns the metrics and logging label for this result.
func (r Result) Outcome() string {
	if r.Succeeded() {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// Age returns how long the result sat in the store before now.
func (r Result) Age() time.Duration {
	if r.ReceivedAt.IsZero() {
		return 0
	}
	return time.Since(r.ReceivedAt)
}
