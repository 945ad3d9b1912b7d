package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/ledger"
	"github.com/google/uuid"
)

var ctx = context.Background()

func newEntry(evidenceID uuid.UUID, action, prev string) *hashchain.Entry {
	e := &hashchain.Entry{
		EvidenceID: evidenceID,
		Actor:      uuid.New().String(),
		Action:     action,
		PrevHash:   prev,
		CreatedAt:  time.Now().UTC(),
	}
	e.Hash = hashchain.EntryHash(e)
	return e
}

func TestAppend_firstEntryChainsFromGenesis(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()

	committed, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if err != nil {
		t.Fatal(err)
	}
	if committed.PrevHash != hashchain.GenesisHash {
		t.Errorf("first entry prev_hash: got %q, want genesis sentinel", committed.PrevHash)
	}
	if committed.ID == uuid.Nil {
		t.Error("committed entry has no id")
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()

	e1, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if err != nil {
		t.Fatal(err)
	}
	e2, err := s.Append(ctx, newEntry(ev, "VIEW", e1.Hash))
	if err != nil {
		t.Fatal(err)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
	}

	n, err := s.Len(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestAppend_staleTipConflicts(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()

	e1, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, newEntry(ev, "VIEW", e1.Hash)); err != nil {
		t.Fatal(err)
	}

	// A second append still claiming e1 as predecessor must lose.
	_, err = s.Append(ctx, newEntry(ev, "TRANSFER", e1.Hash))
	if !errors.Is(err, ledger.ErrChainConflict) {
		t.Errorf("stale-tip append: got %v, want ErrChainConflict", err)
	}

	n, _ := s.Len(ctx, ev)
	if n != 2 {
		t.Errorf("conflicting append must write nothing; have %d entries", n)
	}
}

func TestAppend_genesisClaimOnNonEmptyChainConflicts(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()
	if _, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash)); err != nil {
		t.Fatal(err)
	}
	_, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if !errors.Is(err, ledger.ErrChainConflict) {
		t.Errorf("got %v, want ErrChainConflict", err)
	}
}

func TestChains_independentPerEvidenceItem(t *testing.T) {
	s := ledger.NewMemoryStore()
	evA, evB := uuid.New(), uuid.New()

	if _, err := s.Append(ctx, newEntry(evA, "UPLOAD", hashchain.GenesisHash)); err != nil {
		t.Fatal(err)
	}
	// B's first entry chains from genesis regardless of A's activity.
	if _, err := s.Append(ctx, newEntry(evB, "UPLOAD", hashchain.GenesisHash)); err != nil {
		t.Errorf("independent chain rejected: %v", err)
	}

	tipA, _ := s.Tip(ctx, evA)
	tipB, _ := s.Tip(ctx, evB)
	if tipA == tipB {
		t.Error("two chains share a tip")
	}
}

func TestTip_emptyChainIsGenesis(t *testing.T) {
	s := ledger.NewMemoryStore()
	tip, err := s.Tip(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if tip != hashchain.GenesisHash {
		t.Errorf("empty chain tip: got %q, want genesis sentinel", tip)
	}
}

func TestListForEvidence_oldestFirstAndVerifiable(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()
	prev := hashchain.GenesisHash
	for _, action := range []string{"UPLOAD", "VIEW", "TRANSFER", "VERIFIED"} {
		e, err := s.Append(ctx, newEntry(ev, action, prev))
		if err != nil {
			t.Fatal(err)
		}
		prev = e.Hash
	}

	entries, err := s.ListForEvidence(ctx, ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if res := hashchain.VerifyChain(entries); !res.Valid {
		t.Errorf("listed chain failed verification: %+v", res)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.Before(entries[i-1].CreatedAt) {
			t.Errorf("entries not in creation order at %d", i)
		}
	}
}

func TestListForEvidence_returnsCopies(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()
	if _, err := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash)); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.ListForEvidence(ctx, ev)
	entries[0].Action = "DISPOSED"

	again, _ := s.ListForEvidence(ctx, ev)
	if again[0].Action != "UPLOAD" {
		t.Error("caller mutated a committed entry through the returned slice")
	}
}

func TestWalk_restartable(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()
	e1, _ := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if _, err := s.Append(ctx, newEntry(ev, "VIEW", e1.Hash)); err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop")
	var first string
	if err := s.Walk(ctx, ev, func(e hashchain.Entry) error {
		first = e.Action
		return stop
	}); !errors.Is(err, stop) {
		t.Fatalf("walk did not propagate fn error: %v", err)
	}
	if first != "UPLOAD" {
		t.Errorf("walk did not start from the oldest entry: %q", first)
	}

	var count int
	if err := s.Walk(ctx, ev, func(hashchain.Entry) error { count++; return nil }); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("restarted walk saw %d entries, want 2", count)
	}
}

func TestVerifyEvidence_validChain(t *testing.T) {
	s := ledger.NewMemoryStore()
	ev := uuid.New()
	e1, _ := s.Append(ctx, newEntry(ev, "UPLOAD", hashchain.GenesisHash))
	if _, err := s.Append(ctx, newEntry(ev, "VERIFIED", e1.Hash)); err != nil {
		t.Fatal(err)
	}

	res, err := ledger.VerifyEvidence(ctx, s, ev)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Errorf("verification failed: %+v", res)
	}
}
