package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an evidence item does not exist.
var ErrNotFound = errors.New("evidence: item not found")

// Repository is the persistence interface for the evidence registry.
// *PostgresRepository and *MemoryRepository satisfy it.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Item, error)
	ListActive(ctx context.Context) ([]*Item, error)
	AddVersion(ctx context.Context, evidenceID uuid.UUID, contentHash, locator string, createdBy uuid.UUID) (*Version, error)
	ListVersions(ctx context.Context, evidenceID uuid.UUID) ([]*Version, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// PostgresRepository stores evidence items and versions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new item together with its version 1 in one transaction.
// item.CurrentHash becomes the hash of that first version.
func (r *PostgresRepository) Create(ctx context.Context, item *Item) error {
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

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO evidence_items (id, case_id, name, current_hash, hash_alg, storage_locator, encrypted, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.CaseID, item.Name, item.CurrentHash, item.HashAlg,
		item.StorageLocator, item.Encrypted, item.Status, item.CreatedBy,
		item.CreatedAt, item.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert evidence item: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO evidence_versions (id, evidence_id, version_number, content_hash, storage_locator, created_by, created_at)
		 VALUES ($1, $2, 1, $3, $4, $5, $6)`,
		uuid.New(), item.ID, item.CurrentHash, item.StorageLocator, item.CreatedBy, now,
	); err != nil {
		return fmt.Errorf("insert version 1: %w", err)
	}

	return tx.Commit(ctx)
}

// Get retrieves an item by id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	query := `SELECT id, case_id, name, current_hash, hash_alg, storage_locator, encrypted, status, created_by, created_at, updated_at
	          FROM evidence_items WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// List returns items newest first, optionally filtered by case.
func (r *PostgresRepository) List(ctx context.Context, caseID uuid.UUID, limit, offset int) ([]*Item, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, case_id, name, current_hash, hash_alg, storage_locator, encrypted, status, created_by, created_at, updated_at
		FROM evidence_items
		WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR case_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListActive returns every non-disposed item. Used by the integrity sweeper.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*Item, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, case_id, name, current_hash, hash_alg, storage_locator, encrypted, status, created_by, created_at, updated_at
		 FROM evidence_items WHERE status = 'active' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// AddVersion allocates the next contiguous version number under a row lock on
// the parent item, inserts the version, and moves the item's current_hash —
// all in one transaction, so two concurrent calls cannot claim the same
// version number.
func (r *PostgresRepository) AddVersion(ctx context.Context, evidenceID uuid.UUID, contentHash, locator string, createdBy uuid.UUID) (*Version, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var itemID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM evidence_items WHERE id = $1 FOR UPDATE`, evidenceID).Scan(&itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock evidence item: %w", err)
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM evidence_versions WHERE evidence_id = $1`,
		evidenceID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("next version number: %w", err)
	}

	v := &Version{
		ID:             uuid.New(),
		EvidenceID:     evidenceID,
		VersionNumber:  next,
		ContentHash:    contentHash,
		StorageLocator: locator,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO evidence_versions (id, evidence_id, version_number, content_hash, storage_locator, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.EvidenceID, v.VersionNumber, v.ContentHash, v.StorageLocator, v.CreatedBy, v.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert version %d: %w", next, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE evidence_items SET current_hash = $2, storage_locator = $3, updated_at = $4 WHERE id = $1`,
		evidenceID, contentHash, locator, v.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("update current hash: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit version tx: %w", err)
	}
	return v, nil
}

// ListVersions returns an item's versions, oldest first.
func (r *PostgresRepository) ListVersions(ctx context.Context, evidenceID uuid.UUID) ([]*Version, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, evidence_id, version_number, content_hash, storage_locator, created_by, created_at
		 FROM evidence_versions WHERE evidence_id = $1 ORDER BY version_number ASC`,
		evidenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.EvidenceID, &v.VersionNumber, &v.ContentHash, &v.StorageLocator, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// UpdateStatus changes an item's lifecycle status. Item metadata is mutable;
// the ledger and version rows beneath it are not.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE evidence_items SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Item, error) {
	rows, err := r.db.Query(ctx, query, args...)
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
	return scanItem(rows)
}

func scanItems(rows pgx.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(rows pgx.Rows) (*Item, error) {
	var it Item
	if err := rows.Scan(
		&it.ID, &it.CaseID, &it.Name, &it.CurrentHash, &it.HashAlg,
		&it.StorageLocator, &it.Encrypted, &it.Status, &it.CreatedBy,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &it, nil
}
