// Package access decides whether a requested custody action may proceed. It
// couples to the platform's external RBAC service through a narrow interface
// and owns the access-request lifecycle: an approval authorises exactly one
// custody action, after which a new request is required. Denials are custody
// events in their own right and land in the ledger as ACCESS_DENIED.
package access

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of an access request. A request
// transitions exactly once out of PENDING; a used approval becomes EXPIRED.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusDenied   RequestStatus = "DENIED"
	StatusExpired  RequestStatus = "EXPIRED"
)

// Request is a petition by a user to perform access-class custody actions on
// an evidence item.
type Request struct {
	ID          uuid.UUID     `json:"id"                    db:"id"`
	EvidenceID  uuid.UUID     `json:"evidence_id"           db:"evidence_id"`
	RequesterID uuid.UUID     `json:"requester_id"          db:"requester_id"`
	ApproverID  *uuid.UUID    `json:"approver_id,omitempty" db:"approver_id"`
	Status      RequestStatus `json:"status"                db:"status"`
	Reason      string        `json:"reason"                db:"reason"`
	ExpiresAt   time.Time     `json:"expires_at"            db:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"            db:"created_at"`
	DecidedAt   *time.Time    `json:"decided_at,omitempty"  db:"decided_at"`
}

// LogEntry is a lightweight read/view record for usage analytics. Unlike
// custody ledger entries it is not hash-chained.
type LogEntry struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	EvidenceID uuid.UUID `json:"evidence_id" db:"evidence_id"`
	UserID     uuid.UUID `json:"user_id"     db:"user_id"`
	Action     string    `json:"action"      db:"action"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// Decision is the outcome of an authorisation check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	// RequestID is set when an approved access request was consumed to allow
	// the action.
	RequestID uuid.UUID `json:"request_id,omitempty"`
}

// Denial reason codes.
const (
	ReasonNoPermission      = "rbac_denied"
	ReasonNoApprovedRequest = "no_approved_request"
	ReasonRequestExpired    = "request_expired"
)
