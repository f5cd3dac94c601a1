// Package auth persists the opaque session credential blob so a restarted
// gateway resumes its chat session without re-pairing.
package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the credential persistence contract consumed by the session
// lifecycle.
type Store interface {
	// Load returns the persisted blob, or nil when none exists yet.
	Load() ([]byte, error)

	// Save persists the blob. Saving bytes identical to what is already on
	// disk is a no-op.
	Save(credentials []byte) error

	// Degraded reports whether the most recent Save failed. The session keeps
	// running on in-memory credentials; health surfaces the condition.
	Degraded() bool
}

// FileStore keeps the blob in a single file under a private directory.
type FileStore struct {
	path     string
	mu       sync.Mutex
	degraded bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store writing to path, creating parent directories
// as needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("auth store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create credential directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the credential blob. A missing file is not an error; it just
// means no session has been paired yet.
func (s *FileStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Save writes the blob with private permissions. Unchanged bytes are skipped
// so repeated idempotent saves leave the file untouched.
func (s *FileStore) Save(credentials []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := os.ReadFile(s.path); err == nil && bytes.Equal(existing, credentials) {
		s.degraded = false
		return nil
	}

	if err := os.WriteFile(s.path, credentials, 0o600); err != nil {
		s.degraded = true
		return fmt.Errorf("write credentials: %w", err)
	}
	s.degraded = false
	return nil
}

// Degraded reports whether the last Save failed.
func (s *FileStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}
