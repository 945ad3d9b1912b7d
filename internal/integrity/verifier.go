package integrity

import (
	"context"
	"fmt"

	"github.com/custodia-io/custodia/internal/alerting"
	"github.com/custodia-io/custodia/internal/blobstore"
	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ItemGetter is the slice of the evidence registry the verifier needs.
// evidence.Repository satisfies it.
type ItemGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*evidence.Item, error)
}

// Verifier recomputes content hashes and audits custody chains. It is
// read-only with respect to the system of record; its only write is the
// append-only check-result row, committed for every invocation regardless of
// outcome.
type Verifier struct {
	items   ItemGetter
	chains  ledger.Store
	content blobstore.ContentStore
	results ResultRepository
	alerts  *alerting.Dispatcher // nil = no alerting
	logger  *zap.Logger
}

// NewVerifier creates a Verifier. alerts may be nil.
func NewVerifier(items ItemGetter, chains ledger.Store, content blobstore.ContentStore, results ResultRepository, alerts *alerting.Dispatcher, logger *zap.Logger) *Verifier {
	return &Verifier{
		items:   items,
		chains:  chains,
		content: content,
		results: results,
		alerts:  alerts,
		logger:  logger,
	}
}

// Verify checks one evidence item: the stored content's recomputed hash
// against the recorded current hash, and the full custody chain against the
// hashchain core. MATCH requires both. checkedBy is the acting verifier
// (actor UUID or hashchain.SystemActor).
//
// The returned error covers only failures to persist the result row; check
// failures are reported in the result itself, never swallowed.
func (v *Verifier) Verify(ctx context.Context, evidenceID uuid.UUID, checkedBy string) (*CheckResult, error) {
	item, err := v.items.Get(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}

	res := &CheckResult{
		ID:         uuid.New(),
		EvidenceID: evidenceID,
		StoredHash: item.CurrentHash,
		CheckedBy:  checkedBy,
	}

	contentOK := false
	data, readErr := v.content.Read(ctx, item.StorageLocator)
	if readErr == nil {
		res.ComputedHash = v.content.Hash(data)
		contentOK = res.ComputedHash == item.CurrentHash
	}

	chainRes, chainErr := ledger.VerifyEvidence(ctx, v.chains, evidenceID)
	res.ChainValid = chainErr == nil && chainRes.Valid
	if chainErr == nil {
		res.ChainFault = chainRes.Kind
	}

	switch {
	case chainErr != nil:
		res.Status = StatusError
		res.Reason = ReasonStorageError
	case readErr != nil:
		res.Status = StatusError
		res.Reason = ReasonBlobUnreadable
	case !contentOK:
		res.Status = StatusMismatch
		res.Reason = ReasonContentMismatch
	case !chainRes.Valid:
		res.Status = StatusMismatch
		res.Reason = string(chainRes.Kind)
	default:
		res.Status = StatusMatch
	}

	if err := v.results.Create(ctx, res); err != nil {
		return nil, fmt.Errorf("persist check result: %w", err)
	}

	if res.Status != StatusMatch {
		v.logger.Warn("integrity check failed",
			zap.String("evidence_id", evidenceID.String()),
			zap.String("status", string(res.Status)),
			zap.String("reason", res.Reason),
		)
		v.alerts.Raise(ctx, verificationAlert(res, chainRes))
	}
	return res, nil
}

func verificationAlert(res *CheckResult, chainRes hashchain.ValidationResult) alerting.Alert {
	a := alerting.Alert{
		EvidenceID: res.EvidenceID,
		Detail:     res.Reason,
		Fields: map[string]string{
			"stored_hash":   res.StoredHash,
			"computed_hash": res.ComputedHash,
			"checked_by":    res.CheckedBy,
		},
	}
	switch {
	case res.Status == StatusError:
		a.Kind = alerting.EventVerificationError
		a.Severity = alerting.SeverityWarning
	case !res.ChainValid:
		a.Kind = alerting.EventChainBroken
		a.Severity = alerting.SeverityCritical
		a.Fields["fault_index"] = fmt.Sprintf("%d", chainRes.Index)
		a.Detail = chainRes.Detail
	default:
		a.Kind = alerting.EventIntegrityMismatch
		a.Severity = alerting.SeverityCritical
	}
	return a
}

// History returns past check results for an item, newest first.
func (v *Verifier) History(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*CheckResult, error) {
	return v.results.ListForEvidence(ctx, evidenceID, limit)
}
