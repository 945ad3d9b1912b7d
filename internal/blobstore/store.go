// Package blobstore defines the content storage collaborator the integrity
// verifier reads evidence bytes through. Upload transport and encryption at
// rest live outside this system; the core only ever needs bytes back out and
// a digest over them.
package blobstore

import (
	"context"
	"errors"

	"github.com/custodia-io/custodia/internal/hashchain"
)

// ErrBlobNotFound is returned when a locator resolves to nothing.
var ErrBlobNotFound = errors.New("blobstore: blob not found")

// ContentStore reads stored evidence content by locator and hashes it.
// *LocalStore and *MemoryStore satisfy it.
type ContentStore interface {
	// Read returns the full content behind the locator.
	Read(ctx context.Context, locator string) ([]byte, error)
	// Hash returns the hex digest of data using the system content algorithm.
	Hash(data []byte) string
}

// hashBytes is the shared digest used by all implementations, matching the
// algorithm tag recorded on evidence items.
func hashBytes(data []byte) string {
	return hashchain.Sum(data)
}
