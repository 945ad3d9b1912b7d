package integrity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresResults stores check results in PostgreSQL.
type PostgresResults struct {
	db *pgxpool.Pool
}

// NewPostgresResults creates a PostgresResults.
func NewPostgresResults(db *pgxpool.Pool) *PostgresResults {
	return &PostgresResults{db: db}
}

// Create implements ResultRepository.
func (r *PostgresResults) Create(ctx context.Context, res *CheckResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO integrity_checks (id, evidence_id, computed_hash, stored_hash, status, reason, chain_valid, chain_fault, checked_by, checked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.EvidenceID, res.ComputedHash, res.StoredHash, res.Status,
		res.Reason, res.ChainValid, string(res.ChainFault), res.CheckedBy, res.CheckedAt,
	); err != nil {
		return fmt.Errorf("insert integrity check: %w", err)
	}
	return nil
}

// ListForEvidence implements ResultRepository, newest first.
func (r *PostgresResults) ListForEvidence(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, evidence_id, computed_hash, stored_hash, status, reason, chain_valid, chain_fault, checked_by, checked_at
		 FROM integrity_checks WHERE evidence_id = $1 ORDER BY checked_at DESC LIMIT $2`,
		evidenceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*CheckResult
	for rows.Next() {
		var res CheckResult
		var fault string
		if err := rows.Scan(
			&res.ID, &res.EvidenceID, &res.ComputedHash, &res.StoredHash,
			&res.Status, &res.Reason, &res.ChainValid, &fault,
			&res.CheckedBy, &res.CheckedAt,
		); err != nil {
			return nil, err
		}
		res.ChainFault = hashchain.FaultKind(fault)
		results = append(results, &res)
	}
	return results, rows.Err()
}

// MemoryResults is an in-memory ResultRepository for tests.
type MemoryResults struct {
	mu      sync.RWMutex
	results map[uuid.UUID][]*CheckResult
}

// NewMemoryResults creates an empty MemoryResults.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{results: make(map[uuid.UUID][]*CheckResult)}
}

// Create implements ResultRepository.
func (r *MemoryResults) Create(_ context.Context, res *CheckResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now().UTC()
	}
	cp := *res
	r.results[res.EvidenceID] = append(r.results[res.EvidenceID], &cp)
	return nil
}

// ListForEvidence implements ResultRepository, newest first.
func (r *MemoryResults) ListForEvidence(_ context.Context, evidenceID uuid.UUID, limit int) ([]*CheckResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.results[evidenceID]
	var out []*CheckResult
	for i := len(src) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *src[i]
		out = append(out, &cp)
	}
	return out, nil
}
