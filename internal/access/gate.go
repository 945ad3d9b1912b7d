package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-io/custodia/internal/custody"
	"github.com/custodia-io/custodia/internal/evidence"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RBAC is the external role-based access-control collaborator.
type RBAC interface {
	HasPermission(ctx context.Context, userID, caseID uuid.UUID, permission string) (bool, error)
}

// Recorder is the custody-ledger write interface the gate uses to record
// grants and denials. *custody.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, evidenceID uuid.UUID, actor string, action custody.Action, meta hashchain.Metadata) (*hashchain.Entry, error)
}

// ItemGetter resolves an evidence item to its owning case.
// evidence.Repository satisfies it.
type ItemGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*evidence.Item, error)
}

// permissionFor maps custody actions to the RBAC permission they require.
var permissionFor = map[custody.Action]string{
	custody.ActionUpload:       "evidence.upload",
	custody.ActionView:         "evidence.view",
	custody.ActionTransfer:     "evidence.transfer",
	custody.ActionVersionAdded: "evidence.write",
	custody.ActionVerified:     "evidence.verify",
	custody.ActionDisposed:     "evidence.dispose",
}

// accessClass actions additionally need a consumed, approved access request;
// RBAC membership alone is not enough to open evidence content.
var accessClass = map[custody.Action]bool{
	custody.ActionView:     true,
	custody.ActionTransfer: true,
}

// Gate authorises custody actions. It must return an allowed Decision before
// the recorder is invoked for the action itself; denials are themselves
// recorded as ACCESS_DENIED entries for forensic completeness.
type Gate struct {
	rbac     RBAC
	requests Repository
	items    ItemGetter
	recorder Recorder
	logger   *zap.Logger
}

// NewGate creates a Gate.
func NewGate(rbac RBAC, requests Repository, items ItemGetter, recorder Recorder, logger *zap.Logger) *Gate {
	return &Gate{rbac: rbac, requests: requests, items: items, recorder: recorder, logger: logger}
}

// Authorize decides whether userID may perform action on evidenceID.
// The error return covers infrastructure failures only; a business "no" is an
// Allowed=false Decision, already recorded in the ledger.
func (g *Gate) Authorize(ctx context.Context, userID, evidenceID uuid.UUID, action custody.Action) (Decision, error) {
	item, err := g.items.Get(ctx, evidenceID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve evidence: %w", err)
	}

	perm, ok := permissionFor[action]
	if !ok {
		// Unrecognised custody actions default to the strictest permission.
		perm = "evidence.admin"
	}
	allowed, err := g.rbac.HasPermission(ctx, userID, item.CaseID, perm)
	if err != nil {
		return Decision{}, fmt.Errorf("rbac check: %w", err)
	}
	if !allowed {
		return g.deny(ctx, userID, evidenceID, action, ReasonNoPermission)
	}

	if !accessClass[action] {
		return Decision{Allowed: true}, nil
	}

	req, err := g.requests.ConsumeApproval(ctx, evidenceID, userID)
	if errors.Is(err, ErrNotFound) {
		return g.deny(ctx, userID, evidenceID, action, ReasonNoApprovedRequest)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("consume approval: %w", err)
	}

	if _, err := g.recorder.Record(ctx, evidenceID, userID.String(), custody.ActionAccessGranted, hashchain.Metadata{
		"request_id": req.ID.String(),
		"for_action": string(action),
	}); err != nil {
		return Decision{}, fmt.Errorf("record access grant: %w", err)
	}

	if action == custody.ActionView {
		if err := g.requests.LogAccess(ctx, &LogEntry{
			EvidenceID: evidenceID,
			UserID:     userID,
			Action:     "view",
		}); err != nil {
			// Analytics only; never blocks an authorised action.
			g.logger.Warn("access log write failed", zap.Error(err))
		}
	}
	return Decision{Allowed: true, RequestID: req.ID}, nil
}

// deny records the forensic ACCESS_DENIED entry and returns the decision.
func (g *Gate) deny(ctx context.Context, userID, evidenceID uuid.UUID, action custody.Action, reason string) (Decision, error) {
	if _, err := g.recorder.Record(ctx, evidenceID, userID.String(), custody.ActionAccessDenied, hashchain.Metadata{
		"reason":     reason,
		"for_action": string(action),
	}); err != nil {
		return Decision{}, fmt.Errorf("record access denial: %w", err)
	}
	g.logger.Info("access denied",
		zap.String("user_id", userID.String()),
		zap.String("evidence_id", evidenceID.String()),
		zap.String("action", string(action)),
		zap.String("reason", reason),
	)
	return Decision{Allowed: false, Reason: reason}, nil
}

// CreateRequest opens a PENDING access request for the requester.
func (g *Gate) CreateRequest(ctx context.Context, evidenceID, requesterID uuid.UUID, reason string, ttl time.Duration) (*Request, error) {
	if _, err := g.items.Get(ctx, evidenceID); err != nil {
		return nil, fmt.Errorf("resolve evidence: %w", err)
	}
	req := &Request{
		EvidenceID:  evidenceID,
		RequesterID: requesterID,
		Reason:      reason,
	}
	if ttl > 0 {
		req.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	if err := g.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Decide approves or denies a PENDING request.
func (g *Gate) Decide(ctx context.Context, requestID, approverID uuid.UUID, approve bool) (*Request, error) {
	status := StatusDenied
	if approve {
		status = StatusApproved
	}
	return g.requests.Decide(ctx, requestID, approverID, status)
}

// GetRequest returns a request by id.
func (g *Gate) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return g.requests.Get(ctx, id)
}

// ExpireStale sweeps overdue requests. Run periodically from the server.
func (g *Gate) ExpireStale(ctx context.Context) (int, error) {
	return g.requests.ExpireStale(ctx)
}

// AccessLog returns the view analytics log for an evidence item, newest first.
func (g *Gate) AccessLog(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*LogEntry, error) {
	return g.requests.ListLog(ctx, evidenceID, limit)
}
