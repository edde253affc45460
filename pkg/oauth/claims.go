package oauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeUserInfo extracts identity claims from the access token's JWT
// payload without verifying its signature.
//
// This is a deliberate trust boundary: the decoded claims are display data
// only, and signature verification is delegated to the backend. Never use
// these claims for a local authorization decision.
func DecodeUserInfo(accessToken string) (*UserInfo, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token claims: %w", err)
	}

	info := &UserInfo{
		Sub:           stringClaim(claims, "sub"),
		Email:         stringClaim(claims, "email"),
		GivenName:     stringClaim(claims, "given_name"),
		FamilyName:    stringClaim(claims, "family_name"),
		Picture:       stringClaim(claims, "picture"),
		OrgID:         stringClaim(claims, "org_id"),
		EmailVerified: boolClaim(claims, "email_verified"),
	}
	return info, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, name string) bool {
	if v, ok := claims[name].(bool); ok {
		return v
	}
	return false
}
