package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lockClass namespaces this service's advisory locks away from other users of
// the same database. Must be consistent across all instances.
const lockClass = int32(0x43535459) // "CSTY"

// PostgresStore persists custody chains to PostgreSQL. It implements Store.
//
// Immutability is enforced in the schema itself: the custody_ledger table
// carries a BEFORE UPDATE OR DELETE trigger that raises unconditionally, so
// not even a superuser session going around this code can rewrite history
// without first altering the schema (which is itself a loggable act).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// lockKey derives a per-evidence advisory lock key so appends to different
// evidence items never serialise against each other.
func lockKey(evidenceID uuid.UUID) int32 {
	return int32(binary.BigEndian.Uint32(evidenceID[:4]))
}

// Append implements Store. It acquires a per-evidence advisory lock, compares
// the stored chain tip against entry.PrevHash, and inserts — all within one
// transaction. The unique indexes on entry_hash and (evidence_id, prev_hash)
// are a second line of defence against forks if the lock is ever bypassed.
func (s *PostgresStore) Append(ctx context.Context, entry *hashchain.Entry) (*hashchain.Entry, error) {
	if entry.EvidenceID == uuid.Nil {
		return nil, fmt.Errorf("ledger: entry has no evidence id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise appends per evidence item; chains for different items stay
	// fully parallel. Lock releases on commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1, $2)", lockClass, lockKey(entry.EvidenceID)); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	tip := hashchain.GenesisHash
	err = tx.QueryRow(ctx,
		"SELECT entry_hash FROM custody_ledger WHERE evidence_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1",
		entry.EvidenceID,
	).Scan(&tip)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if entry.PrevHash != tip {
		return nil, fmt.Errorf("%w: expected tip %s, have %s", ErrChainConflict, entry.PrevHash, tip)
	}

	committed := *entry
	if committed.ID == uuid.Nil {
		committed.ID = uuid.New()
	}
	if committed.CreatedAt.IsZero() {
		// Microsecond precision: timestamptz would truncate anything finer
		// and the recomputed hash on read-back would no longer match.
		committed.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	meta, err := json.Marshal(committed.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	actorID, err := actorColumn(committed.Actor)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO custody_ledger (id, evidence_id, actor_id, action, metadata, prev_hash, entry_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		committed.ID, committed.EvidenceID, actorID,
		committed.Action, meta, committed.PrevHash, committed.Hash, committed.CreatedAt,
	); err != nil {
		return nil, mapPgError(err, "insert ledger entry")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err, "commit ledger tx")
	}

	s.logger.Debug("custody entry appended",
		zap.String("evidence_id", committed.EvidenceID.String()),
		zap.String("action", committed.Action),
		zap.String("entry_hash", committed.Hash),
	)
	return &committed, nil
}

// Tip implements Store.
func (s *PostgresStore) Tip(ctx context.Context, evidenceID uuid.UUID) (string, error) {
	var tip string
	err := s.pool.QueryRow(ctx,
		"SELECT entry_hash FROM custody_ledger WHERE evidence_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1",
		evidenceID,
	).Scan(&tip)
	if errors.Is(err, pgx.ErrNoRows) {
		return hashchain.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("read chain tip: %w", err)
	}
	return tip, nil
}

// Last implements Store.
func (s *PostgresStore) Last(ctx context.Context, evidenceID uuid.UUID) (*hashchain.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, evidence_id, actor_id, action, metadata, prev_hash, entry_hash, created_at
		 FROM custody_ledger WHERE evidence_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		evidenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chain tip: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanEntry(rows)
}

// ListForEvidence implements Store.
func (s *PostgresStore) ListForEvidence(ctx context.Context, evidenceID uuid.UUID) ([]hashchain.Entry, error) {
	var entries []hashchain.Entry
	err := s.Walk(ctx, evidenceID, func(e hashchain.Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Walk implements Store. Rows stream oldest first; O(1) memory in chain length.
func (s *PostgresStore) Walk(ctx context.Context, evidenceID uuid.UUID, fn func(hashchain.Entry) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, evidence_id, actor_id, action, metadata, prev_hash, entry_hash, created_at
		 FROM custody_ledger WHERE evidence_id = $1 ORDER BY created_at ASC, id ASC`,
		evidenceID,
	)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(*e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context, evidenceID uuid.UUID) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM custody_ledger WHERE evidence_id = $1", evidenceID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

func scanEntry(rows pgx.Rows) (*hashchain.Entry, error) {
	var (
		e       hashchain.Entry
		actor   *uuid.UUID
		metaRaw []byte
	)
	if err := rows.Scan(&e.ID, &e.EvidenceID, &actor, &e.Action, &metaRaw, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan ledger row: %w", err)
	}
	if actor == nil {
		e.Actor = hashchain.SystemActor
	} else {
		e.Actor = actor.String()
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &e, nil
}

// actorColumn maps the system-actor sentinel to NULL; real actors are stored
// as their UUID. Anything else is refused: storing it as NULL would read
// back as the system actor, dropping attribution and breaking the entry's
// hash on re-verification.
func actorColumn(actor string) (*uuid.UUID, error) {
	if actor == hashchain.SystemActor {
		return nil, nil
	}
	id, err := uuid.Parse(actor)
	if err != nil {
		return nil, fmt.Errorf("ledger: actor %q is neither an actor id nor the system actor", actor)
	}
	return &id, nil
}

// mapPgError translates PostgreSQL error codes into the ledger taxonomy:
// trigger raises from the append-only guard become ErrImmutableViolation,
// chain-index unique violations become ErrChainConflict.
func mapPgError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "P0001" && strings.Contains(pgErr.Message, "append-only"):
			return fmt.Errorf("%w: %s", ErrImmutableViolation, pgErr.Message)
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", ErrChainConflict, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
