package oauth

import (
	"net/url"
	"strings"
)

// AuthorizePath is the issuer's authorization endpoint path, relative to
// the API base URL.
const AuthorizePath = "/user_management/authorize"

// providerSelector identifies the hosted authentication UI to the issuer.
const providerSelector = "authkit"

// BuildAuthorizationURL constructs the authorization endpoint URL for an
// Authorization Code + PKCE request. state may be empty, in which case the
// anti-CSRF parameter is omitted.
//
// Returns a *ConfigurationError if the base URL or redirect URI cannot be
// composed into a valid URL.
func BuildAuthorizationURL(apiBaseURL, clientID, redirectURI, challenge, state string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(apiBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", &ConfigurationError{Reason: "invalid API base URL: " + apiBaseURL, Err: err}
	}

	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		return "", &ConfigurationError{Reason: "invalid redirect URI: " + redirectURI, Err: err}
	}

	base.Path = strings.TrimSuffix(base.Path, "/") + AuthorizePath

	query := base.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	query.Set("provider", providerSelector)
	if state != "" {
		query.Set("state", state)
	}

	base.RawQuery = query.Encode()
	return base.String(), nil
}
