// Package evidence holds the evidence registry: items and their append-only
// version history. Item attributes are ordinary mutable metadata; content
// state changes only by adding a new version, never by editing one in place.
package evidence

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an evidence item.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisposed Status = "disposed"
)

// HashAlgSHA256 is the only content hash algorithm currently produced.
// The tag is stored per item so old records stay verifiable if the
// default ever changes.
const HashAlgSHA256 = "sha256"

// Item is a single piece of evidence owned by exactly one case.
// CurrentHash always equals the content hash of the highest version.
type Item struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	CaseID         uuid.UUID `json:"case_id"         db:"case_id"`
	Name           string    `json:"name"            db:"name"`
	CurrentHash    string    `json:"current_hash"    db:"current_hash"`
	HashAlg        string    `json:"hash_alg"        db:"hash_alg"`
	StorageLocator string    `json:"storage_locator" db:"storage_locator"`
	Encrypted      bool      `json:"encrypted"       db:"encrypted"`
	Status         Status    `json:"status"          db:"status"`
	CreatedBy      uuid.UUID `json:"created_by"      db:"created_by"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

// Version is one content state of an item. Version numbers per item start at
// 1 and are contiguous; rows are append-only at the storage layer.
type Version struct {
	ID             uuid.UUID `json:"id"              db:"id"`
	EvidenceID     uuid.UUID `json:"evidence_id"     db:"evidence_id"`
	VersionNumber  int       `json:"version_number"  db:"version_number"`
	ContentHash    string    `json:"content_hash"    db:"content_hash"`
	StorageLocator string    `json:"storage_locator" db:"storage_locator"`
	CreatedBy      uuid.UUID `json:"created_by"      db:"created_by"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
}

// RegisterRequest is the payload for registering a new evidence item.
type RegisterRequest struct {
	CaseID         uuid.UUID `json:"case_id"         binding:"required"`
	Name           string    `json:"name"            binding:"required"`
	ContentHash    string    `json:"content_hash"    binding:"required"`
	StorageLocator string    `json:"storage_locator" binding:"required"`
	Encrypted      bool      `json:"encrypted"`
}

// VersionRequest is the payload for superseding an item's content.
type VersionRequest struct {
	ContentHash    string `json:"content_hash"    binding:"required"`
	StorageLocator string `json:"storage_locator" binding:"required"`
}
