package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
	log      map[uuid.UUID][]*LogEntry
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests: make(map[uuid.UUID]*Request),
		log:      make(map[uuid.UUID][]*LogEntry),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Status = StatusPending
	req.CreatedAt = time.Now().UTC()
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.CreatedAt.Add(24 * time.Hour)
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// Decide implements Repository.
func (r *MemoryRepository) Decide(_ context.Context, id uuid.UUID, approver uuid.UUID, status RequestStatus) (*Request, error) {
	if status != StatusApproved && status != StatusDenied {
		return nil, fmt.Errorf("access: invalid decision %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Status != StatusPending {
		return nil, ErrAlreadyDecided
	}
	now := time.Now().UTC()
	req.Status = status
	req.ApproverID = &approver
	req.DecidedAt = &now
	cp := *req
	return &cp, nil
}

// ConsumeApproval implements Repository.
func (r *MemoryRepository) ConsumeApproval(_ context.Context, evidenceID, requesterID uuid.UUID) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var best *Request
	for _, req := range r.requests {
		if req.EvidenceID != evidenceID || req.RequesterID != requesterID {
			continue
		}
		if req.Status != StatusApproved || !req.ExpiresAt.After(now) {
			continue
		}
		if best == nil || (req.DecidedAt != nil && best.DecidedAt != nil && req.DecidedAt.After(*best.DecidedAt)) {
			best = req
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	best.Status = StatusExpired
	cp := *best
	return &cp, nil
}

// ExpireStale implements Repository.
func (r *MemoryRepository) ExpireStale(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, req := range r.requests {
		if (req.Status == StatusPending || req.Status == StatusApproved) && !req.ExpiresAt.After(now) {
			req.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

// LogAccess implements Repository.
func (r *MemoryRepository) LogAccess(_ context.Context, entry *LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	cp := *entry
	r.log[entry.EvidenceID] = append(r.log[entry.EvidenceID], &cp)
	return nil
}

// ListLog implements Repository, newest first.
func (r *MemoryRepository) ListLog(_ context.Context, evidenceID uuid.UUID, limit int) ([]*LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.log[evidenceID]
	var out []*LogEntry
	for i := len(src) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *src[i]
		out = append(out, &cp)
	}
	return out, nil
}
