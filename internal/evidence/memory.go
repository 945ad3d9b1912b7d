package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for tests and development.
type MemoryRepository struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]*Item
	versions map[uuid.UUID][]*Version
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:    make(map[uuid.UUID]*Item),
		versions: make(map[uuid.UUID][]*Version),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, item *Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.HashAlg == "" {
		item.HashAlg = HashAlgSHA256
	}
	item.Status = StatusActive

	stored := *item
	r.items[item.ID] = &stored
	r.versions[item.ID] = []*Version{{
		ID:             uuid.New(),
		EvidenceID:     item.ID,
		VersionNumber:  1,
		ContentHash:    item.CurrentHash,
		StorageLocator: item.StorageLocator,
		CreatedBy:      item.CreatedBy,
		CreatedAt:      now,
	}}
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, caseID uuid.UUID, limit, offset int) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Item
	for _, it := range r.items {
		if caseID != uuid.Nil && it.CaseID != caseID {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

// ListActive implements Repository.
func (r *MemoryRepository) ListActive(_ context.Context) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Item
	for _, it := range r.items {
		if it.Status == StatusActive {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

// AddVersion implements Repository. Number allocation and the current-hash
// move happen under one lock, mirroring the Postgres transaction.
func (r *MemoryRepository) AddVersion(_ context.Context, evidenceID uuid.UUID, contentHash, locator string, createdBy uuid.UUID) (*Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[evidenceID]
	if !ok {
		return nil, ErrNotFound
	}
	v := &Version{
		ID:             uuid.New(),
		EvidenceID:     evidenceID,
		VersionNumber:  len(r.versions[evidenceID]) + 1,
		ContentHash:    contentHash,
		StorageLocator: locator,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now().UTC(),
	}
	r.versions[evidenceID] = append(r.versions[evidenceID], v)
	it.CurrentHash = contentHash
	it.StorageLocator = locator
	it.UpdatedAt = v.CreatedAt
	cp := *v
	return &cp, nil
}

// ListVersions implements Repository.
func (r *MemoryRepository) ListVersions(_ context.Context, evidenceID uuid.UUID) ([]*Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.versions[evidenceID]
	out := make([]*Version, 0, len(src))
	for _, v := range src {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateStatus implements Repository.
func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	it.Status = status
	it.UpdatedAt = time.Now().UTC()
	return nil
}
