package integrity_test

import (
	"context"
	"testing"

	"github.com/custodia-io/custodia/internal/blobstore"
	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/integrity"
	"github.com/custodia-io/custodia/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ctx = context.Background()

type fixture struct {
	verifier *integrity.Verifier
	svc      *evidence.Service
	store    *ledger.MemoryStore
	content  *blobstore.MemoryStore
	results  *integrity.MemoryResults
}

func newFixture() *fixture {
	store := ledger.NewMemoryStore()
	repo := evidence.NewMemoryRepository()
	content := blobstore.NewMemoryStore()
	results := integrity.NewMemoryResults()
	svc := evidence.NewService(repo, custody.NewRecorder(store, zap.NewNop()), zap.NewNop())
	verifier := integrity.NewVerifier(repo, store, content, results, nil, zap.NewNop())
	return &fixture{verifier: verifier, svc: svc, store: store, content: content, results: results}
}

// uploadEvidence stages content in the blobstore and registers the item with
// the content's true hash, mirroring the upload flow.
func uploadEvidence(t *testing.T, f *fixture, data []byte) *evidence.Item {
	t.Helper()
	locator := "blobs/" + uuid.New().String()
	hash := f.content.Put(locator, data)
	item, err := f.svc.Register(ctx, evidence.RegisterRequest{
		CaseID:         uuid.New(),
		Name:           "artifact",
		ContentHash:    hash,
		StorageLocator: locator,
	}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func TestVerify_matchOnIntactEvidence(t *testing.T) {
	f := newFixture()
	item := uploadEvidence(t, f, []byte("original bytes"))

	res, err := f.verifier.Verify(ctx, item.ID, hashchain.SystemActor)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != integrity.StatusMatch {
		t.Errorf("status: got %s (%s), want MATCH", res.Status, res.Reason)
	}
	if !res.ChainValid {
		t.Error("chain reported invalid on intact evidence")
	}
	if res.ComputedHash != res.StoredHash {
		t.Errorf("hashes differ: computed %s, stored %s", res.ComputedHash, res.StoredHash)
	}
}

func TestVerify_contentCorruptionIsMismatchButChainStaysValid(t *testing.T) {
	f := newFixture()
	item := uploadEvidence(t, f, []byte("original bytes"))

	// Corrupt the stored artifact out-of-band.
	f.content.Corrupt(item.StorageLocator, []byte("tampered bytes"))

	res, err := f.verifier.Verify(ctx, item.ID, hashchain.SystemActor)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != integrity.StatusMismatch {
		t.Fatalf("status: got %s, want MISMATCH", res.Status)
	}
	if res.Reason != integrity.ReasonContentMismatch {
		t.Errorf("reason: got %q, want %q", res.Reason, integrity.ReasonContentMismatch)
	}
	// Corruption is a storage-layer fact, not a chain-structural one.
	if !res.ChainValid {
		t.Error("chain must remain valid after content-only corruption")
	}
}

func TestVerify_missingBlobIsError(t *testing.T) {
	f := newFixture()
	missing, err := f.svc.Register(ctx, evidence.RegisterRequest{
		CaseID:         uuid.New(),
		Name:           "ghost",
		ContentHash:    "deadbeef",
		StorageLocator: "blobs/never-written",
	}, uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.verifier.Verify(ctx, missing.ID, hashchain.SystemActor)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != integrity.StatusError || res.Reason != integrity.ReasonBlobUnreadable {
		t.Errorf("got %s/%s, want ERROR/%s", res.Status, res.Reason, integrity.ReasonBlobUnreadable)
	}
}

func TestVerify_everyInvocationPersistsOneResult(t *testing.T) {
	f := newFixture()
	item := uploadEvidence(t, f, []byte("bytes"))

	for i := 0; i < 3; i++ {
		if _, err := f.verifier.Verify(ctx, item.ID, hashchain.SystemActor); err != nil {
			t.Fatal(err)
		}
	}
	f.content.Corrupt(item.StorageLocator, []byte("x"))
	if _, err := f.verifier.Verify(ctx, item.ID, hashchain.SystemActor); err != nil {
		t.Fatal(err)
	}

	history, err := f.verifier.History(ctx, item.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 result rows, got %d", len(history))
	}
	// Newest first: the mismatch row leads.
	if history[0].Status != integrity.StatusMismatch {
		t.Errorf("latest result: got %s, want MISMATCH", history[0].Status)
	}
}

func TestVerify_doesNotMutateLedgerOrItem(t *testing.T) {
	f := newFixture()
	item := uploadEvidence(t, f, []byte("bytes"))

	before, _ := f.store.ListForEvidence(ctx, item.ID)
	if _, err := f.verifier.Verify(ctx, item.ID, hashchain.SystemActor); err != nil {
		t.Fatal(err)
	}
	after, _ := f.store.ListForEvidence(ctx, item.ID)

	if len(before) != len(after) {
		t.Errorf("verification changed ledger length: %d -> %d", len(before), len(after))
	}
	got, _ := f.svc.Get(ctx, item.ID)
	if got.CurrentHash != item.CurrentHash {
		t.Error("verification mutated the evidence item")
	}
}
