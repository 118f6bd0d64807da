package client

import "github.com/google/uuid"

// NewState returns a fresh correlation token for a redirect flow.
//
// The state doubles as the CSRF token the provider echoes back, so it must
// be unguessable. A version 4 UUID carries 122 random bits.
func NewState() string {
	return uuid.NewString()
}
