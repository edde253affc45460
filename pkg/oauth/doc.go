// Package oauth provides the protocol-level building blocks for the
// Authorization Code + PKCE flow: PKCE pair generation, authorization URL
// construction, the shared credential and identity value types, and the
// error taxonomy used across authkit.
//
// Everything in this package is pure and stateless; the stateful flow and
// session orchestration live in internal/flow and internal/session.
package oauth
