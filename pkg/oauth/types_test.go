package oauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future expiry", time.Now().Add(time.Hour), false},
		{"past expiry", time.Now().Add(-time.Hour), true},
		{"just expired", time.Now().Add(-time.Millisecond), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := Tokens{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, tok.IsExpired())
		})
	}
}

func TestTokens_ExpiresSoon(t *testing.T) {
	tok := Tokens{ExpiresAt: time.Now().Add(30 * time.Second)}

	assert.True(t, tok.ExpiresSoon(60*time.Second))
	assert.False(t, tok.ExpiresSoon(10*time.Second))
	assert.False(t, tok.IsExpired())
}

func TestNewTokens(t *testing.T) {
	before := time.Now()
	tok := NewTokens("access-abc", "refresh-xyz")

	assert.Equal(t, "access-abc", tok.AccessToken)
	assert.Equal(t, "refresh-xyz", tok.RefreshToken)
	// No separate ID token from the issuer: the access token doubles as one.
	assert.Equal(t, tok.AccessToken, tok.IDToken)

	wantExpiry := before.Add(AccessTokenTTL)
	assert.WithinDuration(t, wantExpiry, tok.ExpiresAt, time.Second)
}

func TestTokens_ToOAuth2Token(t *testing.T) {
	expiry := time.Now().Add(AccessTokenTTL)
	tok := Tokens{
		AccessToken:  "access-abc",
		IDToken:      "access-abc",
		RefreshToken: "refresh-xyz",
		ExpiresAt:    expiry,
	}

	converted := tok.ToOAuth2Token()
	require.NotNil(t, converted)
	assert.Equal(t, "access-abc", converted.AccessToken)
	assert.Equal(t, "Bearer", converted.TokenType)
	assert.Equal(t, "refresh-xyz", converted.RefreshToken)
	assert.Equal(t, expiry, converted.Expiry)
	assert.Equal(t, "access-abc", converted.Extra("id_token"))
}

func TestOrgSession_Has(t *testing.T) {
	session := &OrgSession{
		OrgID:       "org_123",
		Role:        "admin",
		Permissions: []Permission{PermissionMembersRead, PermissionBillingRead},
	}

	assert.True(t, session.Has(PermissionMembersRead))
	assert.False(t, session.Has(PermissionMembersWrite))

	var nilSession *OrgSession
	assert.False(t, nilSession.Has(PermissionMembersRead))
}

func TestParsePermissions_DropsUnknown(t *testing.T) {
	perms := ParsePermissions([]string{
		"members:read",
		"superuser:everything",
		"billing:write",
		"",
	})

	assert.Equal(t, []Permission{PermissionMembersRead, PermissionBillingWrite}, perms)
}
