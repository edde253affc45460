package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// AccessTokenTTL is the fixed lifetime of issued access tokens, matching
// the issuer's stated token lifetime. The token endpoint does not return
// an expires_in value.
const AccessTokenTTL = 5 * time.Minute

// Tokens is an immutable set of credentials from one authentication or
// refresh exchange. A refresh produces a brand-new value; tokens are never
// mutated in place.
//
// The issuer does not supply a separate ID token, so IDToken always
// mirrors AccessToken. Downstream consumers depend on this conflation.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NewTokens builds a Tokens value from a token endpoint response,
// stamping the fixed access-token TTL.
func NewTokens(accessToken, refreshToken string) Tokens {
	return Tokens{
		AccessToken:  accessToken,
		IDToken:      accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(AccessTokenTTL),
	}
}

// IsExpired reports whether the access token has expired.
func (t Tokens) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// ExpiresSoon reports whether the access token expires within the given
// window from now.
func (t Tokens) ExpiresSoon(window time.Duration) bool {
	return !time.Now().Add(window).Before(t.ExpiresAt)
}

// ToOAuth2Token converts the Tokens to an oauth2.Token for compatibility
// with golang.org/x/oauth2 consumers.
func (t Tokens) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}
	return token
}

// UserInfo holds the identity claims for the signed-in user.
// Claims decoded from the access token are display data only; authoritative
// verification is always delegated to the backend.
type UserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	OrgID         string `json:"org_id,omitempty"`
}

// Organization is one organization the user belongs to.
type Organization struct {
	ID          string `json:"id"`
	WorkOSOrgID string `json:"workosOrgId"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
}

// OrgSession is the active organization-scoped authorization context.
// At most one is active at a time.
type OrgSession struct {
	OrgID       string       `json:"orgId"`
	Role        string       `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// Has reports whether the session grants the given permission.
func (s *OrgSession) Has(p Permission) bool {
	if s == nil {
		return false
	}
	for _, granted := range s.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// OfflineSession is a denormalized snapshot of the last-known authenticated
// identity and permissions, persisted to unprotected local storage so it
// can be restored before any network call.
type OfflineSession struct {
	Tokens              Tokens    `json:"tokens"`
	UserID              string    `json:"userId"`
	Email               string    `json:"email"`
	OrgID               string    `json:"orgId,omitempty"`
	Role                string    `json:"role,omitempty"`
	Permissions         []string  `json:"permissions,omitempty"`
	LastAuthenticatedAt time.Time `json:"lastAuthenticatedAt"`
}
