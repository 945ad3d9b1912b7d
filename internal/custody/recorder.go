// Package custody turns domain actions on evidence into committed ledger
// entries. The recorder is the only writer of the custody ledger: it reads the
// chain tip, builds the entry, computes its hash, and appends — retrying with
// bounded backoff when a concurrent recorder targeting the same evidence item
// wins the race. A stale tip is never reused across attempts.
package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-io/custodia/internal/alerting"
	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/custodia-io/custodia/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidAction is returned when an action is malformed or carries
	// missing required metadata. Caller error; nothing is committed and the
	// call must not be retried unchanged.
	ErrInvalidAction = errors.New("custody: invalid action")

	// ErrRetryExhausted is returned when the bounded conflict-retry budget is
	// spent without a successful append. The chain is intact; the action was
	// not recorded.
	ErrRetryExhausted = errors.New("custody: append retries exhausted")
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 20 * time.Millisecond
)

// Recorder builds and commits custody ledger entries.
type Recorder struct {
	store       ledger.Store
	logger      *zap.Logger
	alerts      *alerting.Dispatcher
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
}

// NewRecorder creates a Recorder with the default retry budget.
func NewRecorder(store ledger.Store, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:       store,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
	}
}

// SetAlerts attaches an alert dispatcher. Storage-level immutability
// violations surfaced during an append are raised as critical security
// events in addition to failing the call.
func (r *Recorder) SetAlerts(d *alerting.Dispatcher) {
	r.alerts = d
}

// SetRetry overrides the conflict-retry budget. attempts < 1 is clamped to 1.
func (r *Recorder) SetRetry(attempts int, backoff time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	r.maxAttempts = attempts
	r.backoff = backoff
}

// Record commits exactly one ledger entry for the given action, or returns an
// error having committed nothing. actor is the authenticated actor's UUID
// string, or hashchain.SystemActor for system-initiated actions — an empty
// actor is rejected, custody entries are always attributable.
//
// On ErrChainConflict the tip is re-read and the entry rebuilt; the previous
// hash always reflects a tip observed after the conflict, so the chain cannot
// fork. A context timeout is surfaced as-is: the outcome is unresolved and the
// caller must re-check chain state before acting again.
func (r *Recorder) Record(ctx context.Context, evidenceID uuid.UUID, actor string, action Action, meta hashchain.Metadata) (*hashchain.Entry, error) {
	if evidenceID == uuid.Nil {
		return nil, fmt.Errorf("%w: evidence id required", ErrInvalidAction)
	}
	if actor == "" {
		return nil, fmt.Errorf("%w: actor required for chain-mutating actions", ErrInvalidAction)
	}
	if actor != hashchain.SystemActor {
		// Anything else must be a real actor id: the Postgres store persists
		// the actor as a uuid column and an unparseable value would otherwise
		// lose attribution on the way to disk.
		if _, err := uuid.Parse(actor); err != nil {
			return nil, fmt.Errorf("%w: actor %q is neither an actor id nor the system actor", ErrInvalidAction, actor)
		}
	}
	if action == "" {
		return nil, fmt.Errorf("%w: action kind required", ErrInvalidAction)
	}
	if err := validateMetadata(action, meta); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tip, err := r.readTip(ctx, evidenceID, action)
		if err != nil {
			return nil, err
		}

		entry := &hashchain.Entry{
			ID:         uuid.New(),
			EvidenceID: evidenceID,
			Actor:      actor,
			Action:     string(action),
			Metadata:   meta,
			PrevHash:   tip,
			// timestamptz resolves to microseconds; hash the value the
			// database will hand back, or every committed entry would
			// recompute to a different hash on read.
			CreatedAt: r.now().UTC().Truncate(time.Microsecond),
		}
		entry.Hash = hashchain.EntryHash(entry)

		committed, err := r.store.Append(ctx, entry)
		if err == nil {
			r.logger.Debug("custody action recorded",
				zap.String("evidence_id", evidenceID.String()),
				zap.String("action", string(action)),
				zap.Int("attempt", attempt),
			)
			return committed, nil
		}
		if !errors.Is(err, ledger.ErrChainConflict) {
			if errors.Is(err, ledger.ErrImmutableViolation) {
				r.alerts.Raise(ctx, alerting.Alert{
					Kind:       alerting.EventImmutableViolation,
					Severity:   alerting.SeverityCritical,
					EvidenceID: evidenceID,
					Detail:     err.Error(),
					Fields:     map[string]string{"action": string(action)},
				})
			}
			return nil, err
		}

		lastErr = err
		r.logger.Debug("chain conflict, retrying",
			zap.String("evidence_id", evidenceID.String()),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, r.maxAttempts, lastErr)
}

// readTip fetches the current chain tip and enforces disposal semantics:
// DISPOSED is terminal, only post-disposal audits (VERIFIED) may follow it.
func (r *Recorder) readTip(ctx context.Context, evidenceID uuid.UUID, action Action) (string, error) {
	last, err := r.store.Last(ctx, evidenceID)
	if errors.Is(err, ledger.ErrNotFound) {
		return hashchain.GenesisHash, nil
	}
	if err != nil {
		return "", err
	}
	if last.Action == string(ActionDisposed) && action != ActionVerified {
		return "", fmt.Errorf("%w: evidence is disposed, no further %s", ErrInvalidAction, action)
	}
	return last.Hash, nil
}
