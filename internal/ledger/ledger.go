// Package ledger provides the append-only persistence layer for custody
// chains. The public contract deliberately has no update or delete operation:
// once committed, an entry can only ever be read. The Postgres implementation
// additionally enforces this at the storage layer with triggers, so the
// guarantee survives application bugs and direct administrative access.
package ledger

import (
	"context"
	"errors"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
)

var (
	// ErrChainConflict is returned when an append's expected previous hash no
	// longer matches the chain tip — a concurrent append won the race. The
	// caller must re-read the tip before retrying; blind retries would fork
	// the chain.
	ErrChainConflict = errors.New("ledger: chain conflict")

	// ErrImmutableViolation is returned when the backing storage rejected an
	// attempt to modify or delete a committed row. It is always fatal and
	// indicates either a bug or an intrusion.
	ErrImmutableViolation = errors.New("ledger: immutable row violation")

	// ErrNotFound is returned when the requested entry does not exist.
	ErrNotFound = errors.New("ledger: entry not found")

	// ErrStorageUnavailable is returned when the underlying persistence is
	// unreachable. Retryable with backoff.
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")
)

// Store is the append-only custody ledger. Both MemoryStore and PostgresStore
// implement this interface.
type Store interface {
	// Append commits exactly one new entry. entry.PrevHash is the expected
	// chain tip for entry.EvidenceID (GenesisHash for a new chain); if the
	// tip moved, Append fails with ErrChainConflict and writes nothing.
	Append(ctx context.Context, entry *hashchain.Entry) (*hashchain.Entry, error)

	// Tip returns the hash of the most recent entry for the evidence item,
	// or GenesisHash when the item has no entries yet.
	Tip(ctx context.Context, evidenceID uuid.UUID) (string, error)

	// Last returns the most recent entry for the evidence item, or
	// ErrNotFound when the item has no entries yet.
	Last(ctx context.Context, evidenceID uuid.UUID) (*hashchain.Entry, error)

	// ListForEvidence returns the item's entries oldest first.
	ListForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]hashchain.Entry, error)

	// Walk streams the item's entries oldest first, stopping at the first
	// error returned by fn. It is restartable: each call begins a fresh read.
	Walk(ctx context.Context, evidenceID uuid.UUID, fn func(hashchain.Entry) error) error

	// Len returns the number of entries recorded for the evidence item.
	Len(ctx context.Context, evidenceID uuid.UUID) (int, error)
}

// VerifyEvidence walks an evidence item's full chain in store order and
// validates it with the hashchain core. Storage errors are reported separately
// from chain faults.
func VerifyEvidence(ctx context.Context, s Store, evidenceID uuid.UUID) (hashchain.ValidationResult, error) {
	entries, err := s.ListForEvidence(ctx, evidenceID)
	if err != nil {
		return hashchain.ValidationResult{}, err
	}
	return hashchain.VerifyChain(entries), nil
}
