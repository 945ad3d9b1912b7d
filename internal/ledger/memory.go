package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for tests and single-process development deployments that
// do not require durable persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[uuid.UUID][]hashchain.Entry
	hashes map[string]struct{} // global entry-hash uniqueness
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chains: make(map[uuid.UUID][]hashchain.Entry),
		hashes: make(map[string]struct{}),
	}
}

// Append implements Store. The tip comparison and the insert happen under one
// lock, so no two committed entries for the same evidence item can ever claim
// the same previous hash.
func (s *MemoryStore) Append(_ context.Context, entry *hashchain.Entry) (*hashchain.Entry, error) {
	if entry.EvidenceID == uuid.Nil {
		return nil, fmt.Errorf("ledger: entry has no evidence id")
	}
	if entry.Hash == "" || entry.PrevHash == "" {
		return nil, fmt.Errorf("ledger: entry hashes not computed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tip := hashchain.GenesisHash
	chain := s.chains[entry.EvidenceID]
	if len(chain) > 0 {
		tip = chain[len(chain)-1].Hash
	}
	if entry.PrevHash != tip {
		return nil, fmt.Errorf("%w: expected tip %s, have %s", ErrChainConflict, entry.PrevHash, tip)
	}
	if _, dup := s.hashes[entry.Hash]; dup {
		return nil, fmt.Errorf("%w: duplicate entry hash %s", ErrChainConflict, entry.Hash)
	}

	committed := *entry
	if committed.ID == uuid.Nil {
		committed.ID = uuid.New()
	}
	if committed.CreatedAt.IsZero() {
		committed.CreatedAt = time.Now().UTC()
	}
	s.chains[entry.EvidenceID] = append(chain, committed)
	s.hashes[committed.Hash] = struct{}{}
	return &committed, nil
}

// Tip implements Store.
func (s *MemoryStore) Tip(_ context.Context, evidenceID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[evidenceID]
	if len(chain) == 0 {
		return hashchain.GenesisHash, nil
	}
	return chain[len(chain)-1].Hash, nil
}

// Last implements Store.
func (s *MemoryStore) Last(_ context.Context, evidenceID uuid.UUID) (*hashchain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[evidenceID]
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	last := chain[len(chain)-1]
	return &last, nil
}

// ListForEvidence implements Store. It returns a copy; callers cannot reach
// the committed rows.
func (s *MemoryStore) ListForEvidence(_ context.Context, evidenceID uuid.UUID) ([]hashchain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[evidenceID]
	out := make([]hashchain.Entry, len(chain))
	copy(out, chain)
	return out, nil
}

// Walk implements Store.
func (s *MemoryStore) Walk(ctx context.Context, evidenceID uuid.UUID, fn func(hashchain.Entry) error) error {
	entries, err := s.ListForEvidence(ctx, evidenceID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context, evidenceID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains[evidenceID]), nil
}
