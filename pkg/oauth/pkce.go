package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// verifierLength is the number of characters in a PKCE code verifier.
	// RFC 7636 allows 43-128; 64 characters from a 66-character alphabet
	// gives well over 256 bits of entropy.
	verifierLength = 64

	// verifierAlphabet is the unreserved URI character set permitted for
	// code verifiers by RFC 7636 section 4.1.
	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

	// stateBytes is the number of random bytes for the OAuth state
	// parameter. 32 bytes encodes to 43 base64url characters, satisfying
	// servers that require a minimum of 32.
	stateBytes = 32
)

// PKCEPair holds a PKCE code verifier and its derived challenge.
// The verifier is kept secret and only transmitted during the code
// exchange; the challenge is sent in the authorization request.
type PKCEPair struct {
	// Verifier is a 64-character cryptographically random string drawn
	// from the unreserved URI character set.
	Verifier string

	// Challenge is base64url(SHA256(Verifier)) without padding.
	Challenge string

	// Method is always "S256"; plain is not supported.
	Method string
}

// GeneratePKCE generates a new PKCE code verifier and its S256 challenge.
// Verifiers are never reused: each call produces a fresh random pair.
func GeneratePKCE() (*PKCEPair, error) {
	verifier, err := randomVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	sum := sha256.Sum256([]byte(verifier))
	return &PKCEPair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
		Method:    "S256",
	}, nil
}

// randomVerifier draws verifierLength characters uniformly from
// verifierAlphabet using rejection sampling to avoid modulo bias.
func randomVerifier() (string, error) {
	// Largest multiple of len(verifierAlphabet) that fits in a byte.
	limit := byte(256 - 256%len(verifierAlphabet))

	out := make([]byte, 0, verifierLength)
	buf := make([]byte, verifierLength)
	for len(out) < verifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == verifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the original request
// and prevents CSRF.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
