package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when an access request does not exist.
	ErrNotFound = errors.New("access: request not found")
	// ErrAlreadyDecided is returned when deciding a request that has left
	// PENDING; requests transition exactly once.
	ErrAlreadyDecided = errors.New("access: request already decided")
)

// Repository persists access requests and the access log.
// *PostgresRepository and *MemoryRepository satisfy it.
type Repository interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// Decide moves a PENDING request to APPROVED or DENIED.
	Decide(ctx context.Context, id uuid.UUID, approver uuid.UUID, status RequestStatus) (*Request, error)
	// ConsumeApproval atomically finds an unexpired APPROVED request for the
	// requester and evidence item and marks it EXPIRED (single use). Returns
	// ErrNotFound when no usable approval exists.
	ConsumeApproval(ctx context.Context, evidenceID, requesterID uuid.UUID) (*Request, error)
	// ExpireStale marks overdue PENDING and APPROVED requests EXPIRED and
	// returns how many were affected.
	ExpireStale(ctx context.Context) (int, error)
	LogAccess(ctx context.Context, entry *LogEntry) error
	ListLog(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*LogEntry, error)
}

// PostgresRepository stores access requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, req *Request) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Status = StatusPending
	req.CreatedAt = time.Now().UTC()
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.CreatedAt.Add(24 * time.Hour)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO access_requests (id, evidence_id, requester_id, status, reason, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.EvidenceID, req.RequesterID, req.Status, req.Reason, req.ExpiresAt, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, evidence_id, requester_id, approver_id, status, reason, expires_at, created_at, decided_at
		 FROM access_requests WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRequest(rows)
}

// Decide implements Repository. The WHERE status = 'PENDING' clause makes the
// single-transition rule a storage-level fact: a second decision affects no
// rows.
func (r *PostgresRepository) Decide(ctx context.Context, id uuid.UUID, approver uuid.UUID, status RequestStatus) (*Request, error) {
	if status != StatusApproved && status != StatusDenied {
		return nil, fmt.Errorf("access: invalid decision %q", status)
	}
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE access_requests SET status = $2, approver_id = $3, decided_at = $4
		 WHERE id = $1 AND status = 'PENDING'`,
		id, status, approver, now,
	)
	if err != nil {
		return nil, fmt.Errorf("decide access request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyDecided
	}
	return r.Get(ctx, id)
}

// ConsumeApproval implements Repository. The UPDATE claims the newest usable
// approval; concurrent consumers cannot reuse one because the row leaves
// APPROVED atomically.
func (r *PostgresRepository) ConsumeApproval(ctx context.Context, evidenceID, requesterID uuid.UUID) (*Request, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE access_requests SET status = 'EXPIRED'
		 WHERE id = (
		   SELECT id FROM access_requests
		   WHERE evidence_id = $1 AND requester_id = $2 AND status = 'APPROVED' AND expires_at > now()
		   ORDER BY decided_at DESC LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, evidence_id, requester_id, approver_id, status, reason, expires_at, created_at, decided_at`,
		evidenceID, requesterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRequest(rows)
}

// ExpireStale implements Repository.
func (r *PostgresRepository) ExpireStale(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE access_requests SET status = 'EXPIRED'
		 WHERE status IN ('PENDING', 'APPROVED') AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// LogAccess implements Repository.
func (r *PostgresRepository) LogAccess(ctx context.Context, entry *LogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO access_log (id, evidence_id, user_id, action, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.EvidenceID, entry.UserID, entry.Action, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

// ListLog implements Repository, newest first.
func (r *PostgresRepository) ListLog(ctx context.Context, evidenceID uuid.UUID, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, evidence_id, user_id, action, recorded_at
		 FROM access_log WHERE evidence_id = $1 ORDER BY recorded_at DESC LIMIT $2`,
		evidenceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.EvidenceID, &e.UserID, &e.Action, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func scanRequest(rows pgx.Rows) (*Request, error) {
	var req Request
	if err := rows.Scan(
		&req.ID, &req.EvidenceID, &req.RequesterID, &req.ApproverID,
		&req.Status, &req.Reason, &req.ExpiresAt, &req.CreatedAt, &req.DecidedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}
