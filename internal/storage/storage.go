package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"authkit/pkg/logging"
)

// Blob keys used by the session manager. Each key maps to one opaque blob
// that is replaced atomically on every write.
const (
	// TokenBlobKey is the key under which the current token set is stored.
	TokenBlobKey = "workos_auth_tokens"

	// OfflineSessionKey is the key under which the denormalized offline
	// session snapshot is stored.
	OfflineSessionKey = "offline_session"
)

// DefaultStorageDir is the default directory for persisted blobs, relative
// to the user's home directory.
const DefaultStorageDir = ".config/authkit"

// ErrNotFound is returned by Read when no blob exists for the key.
var ErrNotFound = errors.New("storage: key not found")

// Store persists opaque blobs by key. Implementations must replace blobs
// atomically so a crashed write never leaves a partially written blob.
type Store interface {
	Save(key string, data []byte) error
	Read(key string) ([]byte, error)
	Delete(key string) error
}

// FileStore stores each blob as a single file in a private directory.
//
// SECURITY: blobs hold credentials. The directory is created with 0700 and
// files are written with 0600. Blob contents are never logged.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir. An empty dir
// selects ~/.config/authkit.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// Save writes the blob atomically: it is written to a temp file and renamed
// over the destination, so readers see either the old or the new blob.
func (s *FileStore) Save(key string, data []byte) error {
	dst := s.path(key)
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to restrict blob permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close blob: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace blob: %w", err)
	}

	logging.Debug("Storage", "Saved blob key=%s (%d bytes)", key, len(data))
	return nil
}

// Read returns the blob for the key, or ErrNotFound if none exists.
func (s *FileStore) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob for the key. Deleting an absent key is not an
// error.
func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	logging.Debug("Storage", "Deleted blob key=%s", key)
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}
