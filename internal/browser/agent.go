package browser

import (
	"context"

	"authkit/pkg/logging"
)

// Agent implements the flow controller's user-agent contract for the CLI:
// it spins up a loopback callback server, opens the system browser at the
// authorization URL, and waits for the issuer to redirect back.
//
// The callback scheme parameter is ignored; a loopback agent always
// receives the redirect over plain http on localhost.
type Agent struct {
	port int
}

// NewAgent creates a browser agent listening on the given callback port.
func NewAgent(port int) *Agent {
	return &Agent{port: port}
}

// Authorize runs one interactive authorization round-trip and returns the
// full callback URL. It completes exactly once: with the callback, with
// ctx's cancellation cause, or with a server failure.
func (a *Agent) Authorize(ctx context.Context, authURL, _ string) (string, error) {
	srv := NewCallbackServer(a.port)
	if _, err := srv.Start(ctx); err != nil {
		return "", err
	}
	defer srv.Stop()

	if err := Open(authURL); err != nil {
		// Not fatal; the user can still open the URL by hand.
		logging.Warn("Browser", "Could not open browser automatically (%v), open this URL to sign in: %s", err, authURL)
	}

	return srv.WaitForCallback(ctx)
}
