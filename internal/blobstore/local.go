package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves evidence content from a directory on the local filesystem.
// Locators are paths relative to the base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a LocalStore rooted at baseDir.
func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

// Read implements ContentStore. Locators escaping the base directory are
// rejected; a verifier must never be steerable to arbitrary host files.
func (s *LocalStore) Read(_ context.Context, locator string) ([]byte, error) {
	clean := filepath.Clean(locator)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("blobstore: locator %q escapes base dir", locator)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, clean))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", locator, err)
	}
	return data, nil
}

// Hash implements ContentStore.
func (s *LocalStore) Hash(data []byte) string {
	return hashBytes(data)
}
