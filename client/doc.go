// Package client retrieves OAuth redirect outcomes from a callback
// service over its JSON API.
//
// A typical flow generates a state with NewState (or lets Flow.AuthURL do
// it), sends the user to the provider, then blocks on Wait until the
// redirect lands:
//
//	c, err := client.New(client.Config{BaseURL: "http://localhost:8000"})
//	if err != nil {
//		return err
//	}
//	res, err := c.Wait(ctx, state, 5*time.Minute)
//
// Retrieval is destructive. Each outcome is delivered at most once, so
// exactly one consumer should poll a given state.
package client
