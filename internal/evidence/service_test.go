package evidence_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/custodia-io/custodia/internal/alerting"
	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newService() (*evidence.Service, *ledger.MemoryStore, *evidence.MemoryRepository) {
	store := ledger.NewMemoryStore()
	repo := evidence.NewMemoryRepository()
	svc := evidence.NewService(repo, custody.NewRecorder(store, zap.NewNop()), zap.NewNop())
	return svc, store, repo
}

func register(t *testing.T, svc *evidence.Service, hash string) (*evidence.Item, uuid.UUID) {
	t.Helper()
	actor := uuid.New()
	item, err := svc.Register(ctx, evidence.RegisterRequest{
		CaseID:         uuid.New(),
		Name:           "disk image",
		ContentHash:    hash,
		StorageLocator: "blobs/" + hash,
	}, actor)
	if err != nil {
		t.Fatal(err)
	}
	return item, actor
}

func TestRegister_createsItemVersionAndUploadEntry(t *testing.T) {
	svc, store, repo := newService()
	item, _ := register(t, svc, "h1")

	if item.CurrentHash != "h1" || item.HashAlg != evidence.HashAlgSHA256 {
		t.Errorf("item hash state: %q/%q", item.CurrentHash, item.HashAlg)
	}

	versions, err := repo.ListVersions(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 || versions[0].VersionNumber != 1 {
		t.Fatalf("expected single version 1, got %+v", versions)
	}

	entries, err := store.ListForEvidence(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].Action != string(custody.ActionUpload) {
		t.Errorf("first entry action: got %q, want UPLOAD", entries[0].Action)
	}
	if entries[0].PrevHash != hashchain.GenesisHash {
		t.Error("UPLOAD entry does not chain from the genesis sentinel")
	}
}

func TestAddVersion_contiguousNumbersAndCurrentHash(t *testing.T) {
	svc, store, _ := newService()
	item, actor := register(t, svc, "h1")

	for i := 2; i <= 4; i++ {
		hash := "h" + strconv.Itoa(i)
		v, err := svc.AddVersion(ctx, item.ID, evidence.VersionRequest{
			ContentHash:    hash,
			StorageLocator: "blobs/" + hash,
		}, actor)
		if err != nil {
			t.Fatal(err)
		}
		if v.VersionNumber != i {
			t.Errorf("version number: got %d, want %d", v.VersionNumber, i)
		}
	}

	got, err := svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentHash != "h4" {
		t.Errorf("current_hash: got %q, want hash of highest version", got.CurrentHash)
	}

	entries, _ := store.ListForEvidence(ctx, item.ID)
	if len(entries) != 4 { // UPLOAD + 3×VERSION_ADDED
		t.Fatalf("expected 4 ledger entries, got %d", len(entries))
	}
	if res := hashchain.VerifyChain(entries); !res.Valid {
		t.Errorf("chain invalid after versioning: %+v", res)
	}
	last := entries[3]
	if last.Action != string(custody.ActionVersionAdded) || last.Metadata["version"] != "4" {
		t.Errorf("last entry: %q %v", last.Action, last.Metadata)
	}
}

func TestDispose_terminalAndKeepsHistory(t *testing.T) {
	svc, store, _ := newService()
	item, actor := register(t, svc, "h1")

	if err := svc.Dispose(ctx, item.ID, actor, "destroyed", "retention expired"); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != evidence.StatusDisposed {
		t.Errorf("status: got %q, want disposed", got.Status)
	}

	// History survives disposal.
	entries, _ := store.ListForEvidence(ctx, item.ID)
	if len(entries) != 2 {
		t.Fatalf("expected UPLOAD+DISPOSED, got %d entries", len(entries))
	}
	if entries[1].Action != string(custody.ActionDisposed) {
		t.Errorf("terminal action: got %q", entries[1].Action)
	}

	// Further content changes are rejected.
	_, err = svc.AddVersion(ctx, item.ID, evidence.VersionRequest{ContentHash: "h2", StorageLocator: "x"}, actor)
	if !errors.Is(err, custody.ErrInvalidAction) {
		t.Errorf("version after disposal: got %v, want ErrInvalidAction", err)
	}
}

// The custody ledger carries a foreign key to evidence_items, so the item row
// must be durable before its UPLOAD entry is appended.
func TestRegister_itemRowExistsBeforeUploadEntry(t *testing.T) {
	store := ledger.NewMemoryStore()
	repo := evidence.NewMemoryRepository()
	rec := &rowCheckRecorder{t: t, inner: custody.NewRecorder(store, zap.NewNop()), repo: repo}
	svc := evidence.NewService(repo, rec, zap.NewNop())

	if _, err := svc.Register(ctx, evidence.RegisterRequest{
		CaseID:         uuid.New(),
		Name:           "disk image",
		ContentHash:    "h1",
		StorageLocator: "blobs/h1",
	}, uuid.New()); err != nil {
		t.Fatal(err)
	}
}

func TestAddVersion_ledgerFailureRaisesGapAlert(t *testing.T) {
	store := ledger.NewMemoryStore()
	repo := evidence.NewMemoryRepository()
	rec := &failOnActionRecorder{
		inner: custody.NewRecorder(store, zap.NewNop()),
		fail:  custody.ActionVersionAdded,
	}
	sink := &captureSink{}
	svc := evidence.NewService(repo, rec, zap.NewNop())
	svc.SetAlerts(alerting.NewDispatcher(zap.NewNop(), sink))

	actor := uuid.New()
	item, err := svc.Register(ctx, evidence.RegisterRequest{
		CaseID: uuid.New(), Name: "disk image", ContentHash: "h1", StorageLocator: "blobs/h1",
	}, actor)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.AddVersion(ctx, item.ID, evidence.VersionRequest{ContentHash: "h2", StorageLocator: "blobs/h2"}, actor)
	if err == nil {
		t.Fatal("expected AddVersion to surface the ledger failure")
	}

	// The version row is already durable; the gap must be escalated, not hidden.
	versions, _ := repo.ListVersions(ctx, item.ID)
	if len(versions) != 2 {
		t.Fatalf("expected committed version row, got %d versions", len(versions))
	}
	alerts := sink.all()
	if len(alerts) != 1 || alerts[0].Kind != alerting.EventLedgerWriteGap {
		t.Fatalf("expected one ledger_write_gap alert, got %+v", alerts)
	}
	if alerts[0].EvidenceID != item.ID || alerts[0].Severity != alerting.SeverityCritical {
		t.Errorf("alert: %+v", alerts[0])
	}
}

func TestDispose_statusFailureRaisesGapAlert(t *testing.T) {
	store := ledger.NewMemoryStore()
	repo := &failingStatusRepo{MemoryRepository: evidence.NewMemoryRepository()}
	sink := &captureSink{}
	svc := evidence.NewService(repo, custody.NewRecorder(store, zap.NewNop()), zap.NewNop())
	svc.SetAlerts(alerting.NewDispatcher(zap.NewNop(), sink))

	actor := uuid.New()
	item, err := svc.Register(ctx, evidence.RegisterRequest{
		CaseID: uuid.New(), Name: "disk image", ContentHash: "h1", StorageLocator: "blobs/h1",
	}, actor)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Dispose(ctx, item.ID, actor, "destroyed", ""); err == nil {
		t.Fatal("expected Dispose to surface the status failure")
	}

	// The DISPOSED entry is already on the chain; the stale status row must
	// be escalated for reconciliation.
	entries, _ := store.ListForEvidence(ctx, item.ID)
	if len(entries) != 2 || entries[1].Action != string(custody.ActionDisposed) {
		t.Fatalf("expected committed DISPOSED entry, got %d entries", len(entries))
	}
	alerts := sink.all()
	if len(alerts) != 1 || alerts[0].Kind != alerting.EventLedgerWriteGap {
		t.Fatalf("expected one ledger_write_gap alert, got %+v", alerts)
	}
}

func TestAddVersion_unknownEvidence(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.AddVersion(ctx, uuid.New(), evidence.VersionRequest{ContentHash: "h", StorageLocator: "x"}, uuid.New())
	if !errors.Is(err, evidence.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

// rowCheckRecorder asserts the evidence item row is readable at the moment
// each of its ledger entries is recorded.
type rowCheckRecorder struct {
	t     *testing.T
	inner evidence.Recorder
	repo  *evidence.MemoryRepository
}

func (r *rowCheckRecorder) Record(ctx context.Context, evidenceID uuid.UUID, actor string, action custody.Action, meta hashchain.Metadata) (*hashchain.Entry, error) {
	if _, err := r.repo.Get(ctx, evidenceID); err != nil {
		r.t.Errorf("%s recorded before item row exists: %v", action, err)
	}
	return r.inner.Record(ctx, evidenceID, actor, action, meta)
}

// failOnActionRecorder delegates until it sees the configured action.
type failOnActionRecorder struct {
	inner evidence.Recorder
	fail  custody.Action
}

func (r *failOnActionRecorder) Record(ctx context.Context, evidenceID uuid.UUID, actor string, action custody.Action, meta hashchain.Metadata) (*hashchain.Entry, error) {
	if action == r.fail {
		return nil, custody.ErrRetryExhausted
	}
	return r.inner.Record(ctx, evidenceID, actor, action, meta)
}

// failingStatusRepo rejects status updates only.
type failingStatusRepo struct {
	*evidence.MemoryRepository
}

func (failingStatusRepo) UpdateStatus(context.Context, uuid.UUID, evidence.Status) error {
	return errors.New("status write refused")
}

// captureSink records delivered alerts for assertions.
type captureSink struct {
	mu     sync.Mutex
	alerts []alerting.Alert
}

func (s *captureSink) Deliver(_ context.Context, a alerting.Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *captureSink) all() []alerting.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alerting.Alert(nil), s.alerts...)
}
