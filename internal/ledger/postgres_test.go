package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/custodia-io/custodia/internal/hashchain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapPgError_translatesErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "append-only trigger raise",
			err:  &pgconn.PgError{Code: "P0001", Message: "append-only table custody_ledger does not permit UPDATE"},
			want: ErrImmutableViolation,
		},
		{
			name: "chain index unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "idx_custody_ledger_chain_link"},
			want: ErrChainConflict,
		},
		{
			name: "entry hash unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "idx_custody_ledger_entry_hash"},
			want: ErrChainConflict,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := mapPgError(c.err, "insert ledger entry")
			if !errors.Is(got, c.want) {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestMapPgError_unrelatedErrorsPassThroughWrapped(t *testing.T) {
	// A P0001 raised by some other trigger is not an immutability breach.
	foreign := &pgconn.PgError{Code: "P0001", Message: "quota exceeded"}
	got := mapPgError(foreign, "insert ledger entry")
	if errors.Is(got, ErrImmutableViolation) || errors.Is(got, ErrChainConflict) {
		t.Errorf("foreign P0001 mapped into the ledger taxonomy: %v", got)
	}

	plain := fmt.Errorf("connection reset")
	got = mapPgError(plain, "commit ledger tx")
	if !errors.Is(got, plain) {
		t.Errorf("plain error not preserved in wrap: %v", got)
	}
}

func TestActorColumn_refusesUnattributableActors(t *testing.T) {
	if col, err := actorColumn(hashchain.SystemActor); err != nil || col != nil {
		t.Errorf("system actor: got (%v, %v), want NULL column", col, err)
	}

	id := uuid.New()
	col, err := actorColumn(id.String())
	if err != nil || col == nil || *col != id {
		t.Errorf("actor uuid: got (%v, %v)", col, err)
	}

	if _, err := actorColumn("mallory"); err == nil {
		t.Error("free-form actor accepted; would be stored as NULL and read back as the system actor")
	}
}