package evidence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-io/custodia/internal/alerting"
	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder is the custody-ledger write interface the service depends on.
// *custody.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, evidenceID uuid.UUID, actor string, action custody.Action, meta hashchain.Metadata) (*hashchain.Entry, error)
}

// Service contains business logic for the evidence registry. Every
// state-changing operation commits exactly one custody ledger entry.
//
// Registry rows are written before their ledger entries: the ledger carries a
// foreign key to evidence_items, so the item must exist before its chain can.
// Registry and ledger commit in separate transactions; when the second leg
// fails the first is already durable, so the gap is raised as a critical
// EventLedgerWriteGap alert for operator reconciliation instead of being
// silently swallowed. The write is reported failed to the caller either way.
type Service struct {
	repo     Repository
	recorder Recorder
	alerts   *alerting.Dispatcher
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(repo Repository, recorder Recorder, logger *zap.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

// SetAlerts attaches an alert dispatcher for registry/ledger gap events.
func (s *Service) SetAlerts(d *alerting.Dispatcher) {
	s.alerts = d
}

// reportGap raises the out-of-step alert for a half-committed operation.
func (s *Service) reportGap(ctx context.Context, evidenceID uuid.UUID, committed, missing string, err error) {
	s.logger.Error("registry and ledger out of step",
		zap.String("evidence_id", evidenceID.String()),
		zap.String("committed", committed),
		zap.String("missing", missing),
		zap.Error(err),
	)
	s.alerts.Raise(ctx, alerting.Alert{
		Kind:       alerting.EventLedgerWriteGap,
		Severity:   alerting.SeverityCritical,
		EvidenceID: evidenceID,
		Detail:     err.Error(),
		Fields:     map[string]string{"committed": committed, "missing": missing},
	})
}

// Register creates a new evidence item with its version 1 and records the
// UPLOAD custody entry.
func (s *Service) Register(ctx context.Context, req RegisterRequest, actor uuid.UUID) (*Item, error) {
	item := &Item{
		ID:             uuid.New(),
		CaseID:         req.CaseID,
		Name:           req.Name,
		CurrentHash:    req.ContentHash,
		HashAlg:        HashAlgSHA256,
		StorageLocator: req.StorageLocator,
		Encrypted:      req.Encrypted,
		CreatedBy:      actor,
	}

	// Item row first: custody_ledger.evidence_id references evidence_items,
	// so the UPLOAD entry cannot exist before the row it belongs to.
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create evidence item: %w", err)
	}

	if _, err := s.recorder.Record(ctx, item.ID, actor.String(), custody.ActionUpload, hashchain.Metadata{
		"content_hash": req.ContentHash,
		"locator":      req.StorageLocator,
		"case_id":      req.CaseID.String(),
	}); err != nil {
		s.reportGap(ctx, item.ID, "evidence_items row", "UPLOAD ledger entry", err)
		return nil, fmt.Errorf("record upload: %w", err)
	}

	s.logger.Info("evidence registered",
		zap.String("evidence_id", item.ID.String()),
		zap.String("case_id", item.CaseID.String()),
	)
	return item, nil
}

// Get returns an evidence item by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.Get(ctx, id)
}

// List returns evidence items, optionally scoped to a case.
func (s *Service) List(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Item, error) {
	return s.repo.List(ctx, caseID, limit, offset)
}

// Versions returns an item's full version history, oldest first.
func (s *Service) Versions(ctx context.Context, evidenceID uuid.UUID) ([]*Version, error) {
	return s.repo.ListVersions(ctx, evidenceID)
}

// AddVersion supersedes an item's content with a new version and records the
// VERSION_ADDED custody entry carrying the allocated version number.
func (s *Service) AddVersion(ctx context.Context, evidenceID uuid.UUID, req VersionRequest, actor uuid.UUID) (*Version, error) {
	item, err := s.repo.Get(ctx, evidenceID)
	if err != nil {
		return nil, err
	}
	if item.Status == StatusDisposed {
		return nil, fmt.Errorf("%w: evidence is disposed", custody.ErrInvalidAction)
	}

	v, err := s.repo.AddVersion(ctx, evidenceID, req.ContentHash, req.StorageLocator, actor)
	if err != nil {
		return nil, fmt.Errorf("add version: %w", err)
	}

	if _, err := s.recorder.Record(ctx, evidenceID, actor.String(), custody.ActionVersionAdded, hashchain.Metadata{
		"version":      strconv.Itoa(v.VersionNumber),
		"content_hash": v.ContentHash,
		"locator":      v.StorageLocator,
	}); err != nil {
		s.reportGap(ctx, evidenceID, fmt.Sprintf("version %d row", v.VersionNumber), "VERSION_ADDED ledger entry", err)
		return nil, fmt.Errorf("record version: %w", err)
	}
	return v, nil
}

// Dispose records the terminal DISPOSED custody entry and marks the item
// disposed. The item's ledger and version rows remain; disposal is a ledger
// action, never a row deletion.
func (s *Service) Dispose(ctx context.Context, evidenceID uuid.UUID, actor uuid.UUID, method, reason string) error {
	if _, err := s.repo.Get(ctx, evidenceID); err != nil {
		return err
	}

	meta := hashchain.Metadata{"method": method}
	if reason != "" {
		meta["reason"] = reason
	}
	if _, err := s.recorder.Record(ctx, evidenceID, actor.String(), custody.ActionDisposed, meta); err != nil {
		return fmt.Errorf("record disposal: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, evidenceID, StatusDisposed); err != nil {
		s.reportGap(ctx, evidenceID, "DISPOSED ledger entry", "item status update", err)
		return fmt.Errorf("mark disposed: %w", err)
	}
	s.logger.Info("evidence disposed",
		zap.String("evidence_id", evidenceID.String()),
		zap.String("method", method),
	)
	return nil
}
