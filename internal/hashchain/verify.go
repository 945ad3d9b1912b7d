package hashchain

import "fmt"

// FaultKind classifies the first discrepancy found while walking a chain.
type FaultKind string

const (
	// FaultNone — the chain is intact.
	FaultNone FaultKind = ""
	// FaultGenesis — the first entry's PrevHash is not the genesis sentinel.
	FaultGenesis FaultKind = "genesis_mismatch"
	// FaultLink — an entry's PrevHash does not equal its predecessor's Hash.
	FaultLink FaultKind = "chain_broken"
	// FaultEntryHash — recomputing an entry's hash from its fields does not
	// reproduce the stored Hash; the entry itself was altered.
	FaultEntryHash FaultKind = "entry_hash_invalid"
	// FaultEvidence — an entry belongs to a different evidence item than the
	// chain being verified.
	FaultEvidence FaultKind = "foreign_evidence"
)

// ValidationResult reports the outcome of a chain walk. Index is the position
// of the first faulty entry (zero-based); -1 when the chain is valid.
type ValidationResult struct {
	Valid  bool      `json:"valid"`
	Index  int       `json:"index"`
	Kind   FaultKind `json:"kind,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func fault(i int, kind FaultKind, format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Index: i, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// VerifyChain walks entries in their given (creation) order and checks that
// the first entry chains from GenesisHash, that every later entry's PrevHash
// equals its predecessor's stored Hash, and that every entry's stored Hash
// matches the recomputation over its own fields. The walk stops at the first
// discrepancy. An empty sequence is valid. The input is never mutated.
func VerifyChain(entries []Entry) ValidationResult {
	var prev *Entry
	for i := range entries {
		curr := &entries[i]
		if prev == nil {
			if curr.PrevHash != GenesisHash {
				return fault(i, FaultGenesis, "first entry prev_hash %q, want genesis sentinel", curr.PrevHash)
			}
		} else {
			if curr.EvidenceID != prev.EvidenceID {
				return fault(i, FaultEvidence, "entry belongs to evidence %s, chain is for %s", curr.EvidenceID, prev.EvidenceID)
			}
			if curr.PrevHash != prev.Hash {
				return fault(i, FaultLink, "prev_hash %q does not match predecessor hash %q", curr.PrevHash, prev.Hash)
			}
		}
		if got := EntryHash(curr); got != curr.Hash {
			return fault(i, FaultEntryHash, "stored hash %q, recomputed %q", curr.Hash, got)
		}
		prev = curr
	}
	return ValidationResult{Valid: true, Index: -1}
}
