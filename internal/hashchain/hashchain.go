// Package hashchain implements the pure hash-chain core of the custody ledger.
//
// Each evidence item owns an independent chain. The first entry of a chain
// carries GenesisHash (64 hex zeros) as its PrevHash; every later entry carries
// the EntryHash of its immediate predecessor. An entry's own hash is a SHA-256
// digest over the canonical serialisation of its fields, PrevHash included, so
// altering any committed entry invalidates every hash downstream of it.
//
// The package performs no I/O and never mutates its inputs, so a chain can be
// re-verified offline from an exported sequence of entries.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the well-known sentinel used as PrevHash by the first entry
// of every evidence item's chain. It is a constant, not a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SystemActor is the reserved actor recorded on system-initiated entries
// (scheduled integrity sweeps, migrations). All other entries carry the
// authenticated actor's UUID string.
const SystemActor = "custodia-system"

// Metadata is the structured, action-specific payload attached to an entry.
// String values only: json.Marshal emits map keys in sorted order, which keeps
// the canonical serialisation deterministic across processes.
type Metadata map[string]string

// Entry is a single link in an evidence item's custody chain.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	EvidenceID uuid.UUID `json:"evidence_id"`
	Actor      string    `json:"actor"` // actor UUID string, or SystemActor
	Action     string    `json:"action"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntryHash computes the deterministic SHA-256 hash of an entry.
//
// Canonical serialisation, pipe-separated in this exact order:
//
//	prev_hash | evidence_id | action | actor | metadata-JSON | RFC3339Nano timestamp
//
// Metadata is compact JSON with lexicographically sorted keys ("null" when
// absent). The stored Hash field itself never participates. Independent
// verifiers reproduce identical output from these fields alone.
func EntryHash(e *Entry) string {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		// Metadata is map[string]string; Marshal cannot fail on it.
		panic(fmt.Sprintf("hashchain: marshal metadata: %v", err))
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s",
		e.PrevHash, e.EvidenceID, e.Action, e.Actor,
		meta, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Sum returns the hex-encoded SHA-256 digest of data. It is the content hash
// used for evidence payloads throughout the system.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
