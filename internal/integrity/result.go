// Package integrity implements the verification engine: it proves (or
// disproves) that stored evidence still matches its recorded hash history and
// that the custody chain itself is intact. Every verification persists one
// append-only result row — an audit of the audits — and mutates nothing else.
package integrity

import (
	"context"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
)

// Status is the overall outcome of one verification.
type Status string

const (
	// StatusMatch — content hash matches the record AND the chain verifies.
	StatusMatch Status = "MATCH"
	// StatusMismatch — at least one of the two checks failed; Reason says which.
	StatusMismatch Status = "MISMATCH"
	// StatusError — the check could not be completed (storage unreachable).
	StatusError Status = "ERROR"
)

// Reason codes attached to non-MATCH results. Chain faults reuse the
// hashchain fault kinds verbatim so reports line up with offline audits.
const (
	ReasonContentMismatch = "content_hash_mismatch"
	ReasonBlobUnreadable  = "blob_unreadable"
	ReasonStorageError    = "storage_error"
)

// CheckResult is one row in the append-only integrity audit history.
type CheckResult struct {
	ID           uuid.UUID `json:"id"            db:"id"`
	EvidenceID   uuid.UUID `json:"evidence_id"   db:"evidence_id"`
	ComputedHash string    `json:"computed_hash" db:"computed_hash"`
	StoredHash   string    `json:"stored_hash"   db:"stored_hash"`
	Status       Status    `json:"status"        db:"status"`
	Reason       string    `json:"reason,omitempty" db:"reason"`
	ChainValid   bool      `json:"chain_valid"   db:"chain_valid"`
	ChainFault   hashchain.FaultKind `json:"chain_fault,omitempty" db:"chain_fault"`
	CheckedBy    string    `json:"checked_by"    db:"checked_by"`
	CheckedAt    time.Time `json:"checked_at"    db:"checked_at"`
}

// ResultRepository persists check results. Append-only: there is no update or
// delete, and the Postgres table rejects both at the trigger level.
type ResultRepository interface {
	Create(ctx context.Context, r *CheckResult) error
	ListForEvidence(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*CheckResult, error)
}
