package client

import "golang.org/x/oauth2"

// Flow builds provider authorization URLs for the redirect flow the
// callback service terminates.
type Flow struct {
	config *oauth2.Config
}

// NewFlow wraps an oauth2 config whose RedirectURL points at the callback
// service's /callback endpoint. Token exchange stays with the caller.
func NewFlow(config *oauth2.Config) *Flow {
	return &Flow{config: config}
}

// AuthURL returns the provider URL to open in a browser and the state to
// poll for afterwards. Offline access is requested so the eventual token
// exchange yields a refresh token.
func (f *Flow) AuthURL(opts ...oauth2.AuthCodeOption) (authURL, state string) {
	state = NewState()
	opts = append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline}, opts...)
	return f.config.AuthCodeURL(state, opts...), state
}
