package oauth

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers are expected to branch on with
// errors.Is.
var (
	// ErrNotAuthenticated indicates an operation that requires a session
	// was called while no session exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUserCancelled indicates the user aborted the interactive
	// authentication step. This is not an error condition for UI purposes;
	// callers typically swallow it at the sign-in call site.
	ErrUserCancelled = errors.New("authentication cancelled by user")

	// ErrBiometricFailed indicates the local biometric/device-owner check
	// failed or was denied.
	ErrBiometricFailed = errors.New("biometric authentication failed")

	// ErrFlowInProgress indicates a sign-in attempt was started while
	// another attempt is still in flight on the same controller.
	ErrFlowInProgress = errors.New("an authentication attempt is already in progress")
)

// ConfigurationError indicates a malformed or incomplete configuration
// (unparseable URLs, missing backend). This is a caller bug and is never
// retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NetworkError indicates a transport failure or a non-2xx response from a
// remote endpoint. Retryable by the caller. The raw response body is kept
// for diagnostics; it is never parsed.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: request failed with status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return e.Op + ": network error"
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidResponseError indicates a response that could not be parsed into
// the expected shape. Not retried automatically.
type InvalidResponseError struct {
	Op   string
	Body string
	Err  error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: invalid response: %v", e.Op, e.Err)
	}
	return e.Op + ": invalid response"
}

func (e *InvalidResponseError) Unwrap() error { return e.Err }

// TokenRefreshError indicates a refresh-token exchange failed. The session
// owner reacts by falling back to the unauthenticated state rather than
// retrying forever.
type TokenRefreshError struct {
	Err error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }
