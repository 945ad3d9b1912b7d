// Package client provides the Custodia Go SDK for talking to the custody
// service HTTP API: registering evidence, recording custody actions, running
// integrity checks, and driving the access-request workflow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the service reports a missing resource.
var ErrNotFound = errors.New("resource not found")

// ErrForbidden is returned when the service denies the action; the denial
// reason, when present, is wrapped into the error message.
var ErrForbidden = errors.New("action not authorised")

// Evidence is the registry record for one item.
type Evidence struct {
	ID             string    `json:"id"`
	CaseID         string    `json:"case_id"`
	Name           string    `json:"name"`
	CurrentHash    string    `json:"current_hash"`
	HashAlg        string    `json:"hash_alg"`
	StorageLocator string    `json:"storage_locator"`
	Encrypted      bool      `json:"encrypted"`
	Status         string    `json:"status"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is one content version of an evidence item.
type Version struct {
	ID             string    `json:"id"`
	EvidenceID     string    `json:"evidence_id"`
	VersionNumber  int       `json:"version_number"`
	ContentHash    string    `json:"content_hash"`
	StorageLocator string    `json:"storage_locator"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is one custody chain entry.
type LedgerEntry struct {
	ID         string            `json:"id"`
	EvidenceID string            `json:"evidence_id"`
	Actor      string            `json:"actor"`
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prev_hash"`
	Hash       string            `json:"hash"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ChainStatus is the result of a chain verification.
type ChainStatus struct {
	Valid  bool   `json:"valid"`
	Index  int    `json:"index"`
	Fault  string `json:"fault"`
	Detail string `json:"detail"`
}

// IntegrityResult is one integrity check outcome.
type IntegrityResult struct {
	ID           string    `json:"id"`
	EvidenceID   string    `json:"evidence_id"`
	ComputedHash string    `json:"computed_hash"`
	StoredHash   string    `json:"stored_hash"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	ChainValid   bool      `json:"chain_valid"`
	ChainFault   string    `json:"chain_fault,omitempty"`
	CheckedBy    string    `json:"checked_by"`
	CheckedAt    time.Time `json:"checked_at"`
}

// AccessRequest is one access-request record.
type AccessRequest struct {
	ID          string     `json:"id"`
	EvidenceID  string     `json:"evidence_id"`
	RequesterID string     `json:"requester_id"`
	ApproverID  *string    `json:"approver_id,omitempty"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// RegisterEvidenceRequest is the payload for RegisterEvidence.
type RegisterEvidenceRequest struct {
	CaseID         string `json:"case_id"`
	Name           string `json:"name"`
	ContentHash    string `json:"content_hash"`
	StorageLocator string `json:"storage_locator"`
	Encrypted      bool   `json:"encrypted,omitempty"`
}

// Client is a Custodia API client. Safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBearerToken sets the actor session token sent on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client for the service at base (e.g. "http://localhost:8080").
func New(base string, opts ...Option) (*Client, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return nil, errors.New("client: base URL required")
	}
	c := &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MustNew is New but panics on error. Intended for CLI wiring.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// RegisterEvidence registers a new item and writes its genesis UPLOAD entry.
func (c *Client) RegisterEvidence(ctx context.Context, req RegisterEvidenceRequest) (*Evidence, error) {
	var out Evidence
	if err := c.do(ctx, http.MethodPost, "/api/v1/evidence", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvidence fetches one item by ID.
func (c *Client) GetEvidence(ctx context.Context, id string) (*Evidence, error) {
	var out Evidence
	if err := c.do(ctx, http.MethodGet, "/api/v1/evidence/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddVersion supersedes the item's content with a new version.
func (c *Client) AddVersion(ctx context.Context, evidenceID, contentHash, locator string) (*Version, error) {
	var out Version
	body := map[string]string{"content_hash": contentHash, "storage_locator": locator}
	if err := c.do(ctx, http.MethodPost, "/api/v1/evidence/"+evidenceID+"/versions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Versions lists all content versions of an item.
func (c *Client) Versions(ctx context.Context, evidenceID string) ([]Version, error) {
	var out struct {
		Versions []Version `json:"versions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/evidence/"+evidenceID+"/versions", nil, &out); err != nil {
		return nil, err
	}
	return out.Versions, nil
}

// RecordAction appends a custody action (VIEW, TRANSFER, ...) to the chain.
func (c *Client) RecordAction(ctx context.Context, evidenceID, action string, metadata map[string]string) (*LedgerEntry, error) {
	var out LedgerEntry
	body := map[string]any{"action": action, "metadata": metadata}
	if err := c.do(ctx, http.MethodPost, "/api/v1/evidence/"+evidenceID+"/custody", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ledger returns the full custody chain for an item, oldest first.
func (c *Client) Ledger(ctx context.Context, evidenceID string) ([]LedgerEntry, error) {
	var out struct {
		Entries []LedgerEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/evidence/"+evidenceID+"/ledger", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// VerifyLedger walks the chain server-side and reports its status.
func (c *Client) VerifyLedger(ctx context.Context, evidenceID string) (*ChainStatus, error) {
	var out ChainStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/evidence/"+evidenceID+"/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunIntegrityCheck triggers a content + chain verification.
func (c *Client) RunIntegrityCheck(ctx context.Context, evidenceID string) (*IntegrityResult, error) {
	var out IntegrityResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/evidence/"+evidenceID+"/integrity", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IntegrityHistory lists past check results, newest first.
func (c *Client) IntegrityHistory(ctx context.Context, evidenceID string) ([]IntegrityResult, error) {
	var out struct {
		Checks []IntegrityResult `json:"checks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/evidence/"+evidenceID+"/integrity", nil, &out); err != nil {
		return nil, err
	}
	return out.Checks, nil
}

// Dispose records the terminal DISPOSED entry for an item.
func (c *Client) Dispose(ctx context.Context, evidenceID, method, reason string) error {
	body := map[string]string{"method": method, "reason": reason}
	return c.do(ctx, http.MethodPost, "/api/v1/evidence/"+evidenceID+"/dispose", body, nil)
}

// CreateAccessRequest opens a PENDING access request.
func (c *Client) CreateAccessRequest(ctx context.Context, evidenceID, reason string, ttl time.Duration) (*AccessRequest, error) {
	var out AccessRequest
	body := map[string]any{
		"evidence_id": evidenceID,
		"reason":      reason,
		"ttl_seconds": int(ttl.Seconds()),
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/access-requests", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveAccessRequest approves a PENDING request.
func (c *Client) ApproveAccessRequest(ctx context.Context, requestID string) (*AccessRequest, error) {
	var out AccessRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/access-requests/"+requestID+"/approve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DenyAccessRequest denies a PENDING request.
func (c *Client) DenyAccessRequest(ctx context.Context, requestID string) (*AccessRequest, error) {
	var out AccessRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/access-requests/"+requestID+"/deny", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do executes one JSON round trip and decodes the response into out when
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError maps an error response to a sentinel where one applies.
func apiError(status int, raw []byte) error {
	var body struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusForbidden:
		if body.Reason != "" {
			return fmt.Errorf("%w: %s (%s)", ErrForbidden, msg, body.Reason)
		}
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	default:
		return fmt.Errorf("api error %d: %s", status, msg)
	}
}
