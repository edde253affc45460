package oauth

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeUnsignedJWT builds a syntactically valid JWT with the given payload
// claims and a garbage signature. Signatures are never verified client-side.
func makeUnsignedJWT(t *testing.T, claims map[string]interface{}) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestDecodeUserInfo(t *testing.T) {
	token := makeUnsignedJWT(t, map[string]interface{}{
		"sub":            "user_01H",
		"email":          "kim@example.com",
		"email_verified": true,
		"given_name":     "Kim",
		"family_name":    "Park",
		"picture":        "https://example.com/kim.png",
		"org_id":         "org_01H",
	})

	info, err := DecodeUserInfo(token)
	require.NoError(t, err)

	assert.Equal(t, "user_01H", info.Sub)
	assert.Equal(t, "kim@example.com", info.Email)
	assert.True(t, info.EmailVerified)
	assert.Equal(t, "Kim", info.GivenName)
	assert.Equal(t, "Park", info.FamilyName)
	assert.Equal(t, "https://example.com/kim.png", info.Picture)
	assert.Equal(t, "org_01H", info.OrgID)
}

func TestDecodeUserInfo_MissingOptionalClaims(t *testing.T) {
	token := makeUnsignedJWT(t, map[string]interface{}{
		"sub": "user_01H",
	})

	info, err := DecodeUserInfo(token)
	require.NoError(t, err)

	assert.Equal(t, "user_01H", info.Sub)
	assert.Empty(t, info.Email)
	assert.False(t, info.EmailVerified)
	assert.Empty(t, info.OrgID)
}

func TestDecodeUserInfo_NotAJWT(t *testing.T) {
	_, err := DecodeUserInfo("opaque-token")
	assert.Error(t, err)
}
