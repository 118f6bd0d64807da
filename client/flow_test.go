package client

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestFlow() *Flow {
	return NewFlow(&oauth2.Config{
		ClientID: "client-id",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://provider.example/authorize",
			TokenURL: "https://provider.example/token",
		},
		RedirectURL: "http://localhost:8000/callback",
		Scopes:      []string{"openid", "email"},
	})
}

func TestFlow_AuthURL(t *testing.T) {
	f := newTestFlow()

	authURL, state := f.AuthURL()
	require.NotEmpty(t, state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8000/callback", q.Get("redirect_uri"))
	assert.Equal(t, "offline", q.Get("access_type"), "offline access should be requested")
	assert.Equal(t, "openid email", q.Get("scope"))
}

func TestFlow_AuthURL_ExtraOptions(t *testing.T) {
	f := newTestFlow()

	authURL, _ := f.AuthURL(oauth2.ApprovalForce, oauth2.SetAuthURLParam("login_hint", "dev@example.com"))

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "consent", q.Get("prompt"), "ApprovalForce should request a consent prompt")
	assert.Equal(t, "dev@example.com", q.Get("login_hint"), "caller options should pass through untouched")
}

func TestFlow_AuthURL_FreshStatePerCall(t *testing.T) {
	f := newTestFlow()

	_, first := f.AuthURL()
	_, second := f.AuthURL()
	assert.NotEqual(t, first, second, "each flow start must get its own state")
}

func TestNewState(t *testing.T) {
	state := NewState()

	_, err := uuid.Parse(state)
	require.NoError(t, err, "state should be a valid UUID")

	assert.NotEqual(t, state, NewState())
}
