package storage

import (
	"context"
	"fmt"

	"authkit/pkg/logging"
	"authkit/pkg/oauth"
)

// Gate is a live biometric/device-owner check. How the prompt is composed
// is the platform's concern; the session manager only depends on the
// pass/fail outcome.
type Gate interface {
	Authenticate(ctx context.Context) error
}

// ProtectedStore wraps a Store so that reads require a successful Gate
// check first. Writes and deletes pass through ungated, matching
// hardware-keystore semantics where storing is cheap and disclosure is
// what needs the owner present.
type ProtectedStore struct {
	inner Store
	gate  Gate
}

// NewProtectedStore wraps inner with the given gate.
func NewProtectedStore(inner Store, gate Gate) *ProtectedStore {
	return &ProtectedStore{inner: inner, gate: gate}
}

// Read authenticates through the gate and then reads the blob. A failed or
// denied gate check returns an error wrapping oauth.ErrBiometricFailed.
func (s *ProtectedStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := s.gate.Authenticate(ctx); err != nil {
		logging.Warn("Storage", "Protected read denied for key=%s: %v", key, err)
		return nil, fmt.Errorf("%w: %v", oauth.ErrBiometricFailed, err)
	}
	return s.inner.Read(key)
}

// Save stores the blob without a gate check.
func (s *ProtectedStore) Save(key string, data []byte) error {
	return s.inner.Save(key, data)
}

// Delete removes the blob without a gate check.
func (s *ProtectedStore) Delete(key string) error {
	return s.inner.Delete(key)
}
