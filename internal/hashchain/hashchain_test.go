package hashchain_test

import (
	"testing"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
)

func buildChain(t *testing.T, evidenceID uuid.UUID, actions ...string) []hashchain.Entry {
	t.Helper()
	prev := hashchain.GenesisHash
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	entries := make([]hashchain.Entry, 0, len(actions))
	for i, action := range actions {
		e := hashchain.Entry{
			ID:         uuid.New(),
			EvidenceID: evidenceID,
			Actor:      uuid.New().String(),
			Action:     action,
			Metadata:   hashchain.Metadata{"seq": action},
			PrevHash:   prev,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		e.Hash = hashchain.EntryHash(&e)
		prev = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestEntryHash_deterministic(t *testing.T) {
	e := hashchain.Entry{
		ID:         uuid.New(),
		EvidenceID: uuid.New(),
		Actor:      hashchain.SystemActor,
		Action:     "UPLOAD",
		Metadata:   hashchain.Metadata{"filename": "dump.bin", "size": "4096"},
		PrevHash:   hashchain.GenesisHash,
		CreatedAt:  time.Now().UTC(),
	}
	if hashchain.EntryHash(&e) != hashchain.EntryHash(&e) {
		t.Error("identical inputs produced different hashes")
	}
}

func TestEntryHash_sensitiveToEveryField(t *testing.T) {
	base := hashchain.Entry{
		EvidenceID: uuid.New(),
		Actor:      uuid.New().String(),
		Action:     "TRANSFER",
		Metadata:   hashchain.Metadata{"to_actor": "lab-7"},
		PrevHash:   hashchain.GenesisHash,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	want := hashchain.EntryHash(&base)

	mutations := map[string]func(e *hashchain.Entry){
		"evidence_id": func(e *hashchain.Entry) { e.EvidenceID = uuid.New() },
		"actor":       func(e *hashchain.Entry) { e.Actor = hashchain.SystemActor },
		"action":      func(e *hashchain.Entry) { e.Action = "VIEW" },
		"metadata":    func(e *hashchain.Entry) { e.Metadata = hashchain.Metadata{"to_actor": "lab-8"} },
		"prev_hash":   func(e *hashchain.Entry) { e.PrevHash = "ff" + hashchain.GenesisHash[2:] },
		"timestamp":   func(e *hashchain.Entry) { e.CreatedAt = e.CreatedAt.Add(time.Nanosecond) },
	}
	for field, mutate := range mutations {
		e := base
		mutate(&e)
		if hashchain.EntryHash(&e) == want {
			t.Errorf("mutating %s did not change the hash", field)
		}
	}
}

func TestVerifyChain_valid(t *testing.T) {
	entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW", "TRANSFER", "VERIFIED")
	res := hashchain.VerifyChain(entries)
	if !res.Valid {
		t.Fatalf("valid chain reported fault %s at index %d: %s", res.Kind, res.Index, res.Detail)
	}
	if res.Index != -1 {
		t.Errorf("valid result index: got %d, want -1", res.Index)
	}
}

func TestVerifyChain_emptyIsValid(t *testing.T) {
	if res := hashchain.VerifyChain(nil); !res.Valid {
		t.Errorf("empty chain should be valid, got %s", res.Kind)
	}
}

func TestVerifyChain_genesisSentinelRequired(t *testing.T) {
	entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW")
	entries[0].PrevHash = entries[1].Hash
	entries[0].Hash = hashchain.EntryHash(&entries[0])

	res := hashchain.VerifyChain(entries[:1])
	if res.Valid || res.Kind != hashchain.FaultGenesis || res.Index != 0 {
		t.Errorf("got %+v, want genesis_mismatch at index 0", res)
	}
}

func TestVerifyChain_tamperedFieldDetectedAtExactIndex(t *testing.T) {
	for _, tampered := range []int{0, 1, 2, 3} {
		entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW", "TRANSFER", "DISPOSED")
		entries[tampered].Action = "VERIFIED" // stored hash left stale on purpose

		res := hashchain.VerifyChain(entries)
		if res.Valid {
			t.Fatalf("tampered entry %d went undetected", tampered)
		}
		if res.Index != tampered {
			t.Errorf("fault index: got %d, want %d", res.Index, tampered)
		}
		if res.Kind != hashchain.FaultEntryHash {
			t.Errorf("fault kind: got %s, want %s", res.Kind, hashchain.FaultEntryHash)
		}
	}
}

func TestVerifyChain_brokenLink(t *testing.T) {
	entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW", "TRANSFER")
	// Rebuild entry 2 chained to a forged predecessor hash.
	entries[2].PrevHash = "11" + hashchain.GenesisHash[2:]
	entries[2].Hash = hashchain.EntryHash(&entries[2])

	res := hashchain.VerifyChain(entries)
	if res.Valid || res.Kind != hashchain.FaultLink || res.Index != 2 {
		t.Errorf("got %+v, want chain_broken at index 2", res)
	}
}

func TestVerifyChain_foreignEvidenceRejected(t *testing.T) {
	entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW")
	entries[1].EvidenceID = uuid.New()
	entries[1].Hash = hashchain.EntryHash(&entries[1])

	res := hashchain.VerifyChain(entries)
	if res.Valid || res.Kind != hashchain.FaultEvidence {
		t.Errorf("got %+v, want foreign_evidence", res)
	}
}

func TestVerifyChain_doesNotMutateInput(t *testing.T) {
	entries := buildChain(t, uuid.New(), "UPLOAD", "VIEW")
	before := make([]hashchain.Entry, len(entries))
	copy(before, entries)

	hashchain.VerifyChain(entries)

	for i := range entries {
		if entries[i].Hash != before[i].Hash || entries[i].PrevHash != before[i].PrevHash ||
			entries[i].Action != before[i].Action || !entries[i].CreatedAt.Equal(before[i].CreatedAt) {
			t.Fatalf("entry %d mutated by VerifyChain", i)
		}
	}
}

func TestSum_knownVector(t *testing.T) {
	// SHA-256("") — fixed by the algorithm.
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := hashchain.Sum(nil); got != want {
		t.Errorf("Sum(nil): got %s, want %s", got, want)
	}
}
