package access

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Case roles, from least to most privileged.
const (
	RoleAuditor   = "auditor"
	RoleExaminer  = "examiner"
	RoleCustodian = "custodian"
	RoleAdmin     = "admin"
)

// rolePermissions maps a case role to the evidence permissions it grants.
var rolePermissions = map[string]map[string]bool{
	RoleAuditor: {
		"evidence.view":   true,
		"evidence.verify": true,
	},
	RoleExaminer: {
		"evidence.view":     true,
		"evidence.verify":   true,
		"evidence.upload":   true,
		"evidence.write":    true,
		"evidence.transfer": true,
	},
	RoleCustodian: {
		"evidence.view":     true,
		"evidence.verify":   true,
		"evidence.upload":   true,
		"evidence.write":    true,
		"evidence.transfer": true,
		"evidence.dispose":  true,
	},
	RoleAdmin: {
		"evidence.view":     true,
		"evidence.verify":   true,
		"evidence.upload":   true,
		"evidence.write":    true,
		"evidence.transfer": true,
		"evidence.dispose":  true,
		"evidence.admin":    true,
	},
}

// PostgresRBAC resolves case membership from the case_roles table. It is the
// read side only; granting and revoking roles happens outside this service.
type PostgresRBAC struct {
	db *pgxpool.Pool
}

// NewPostgresRBAC creates a PostgresRBAC backed by the given pool.
func NewPostgresRBAC(db *pgxpool.Pool) *PostgresRBAC {
	return &PostgresRBAC{db: db}
}

// HasPermission implements RBAC. A user with no role on the case has no
// permissions at all.
func (r *PostgresRBAC) HasPermission(ctx context.Context, userID, caseID uuid.UUID, permission string) (bool, error) {
	var role string
	err := r.db.QueryRow(ctx,
		`SELECT role FROM case_roles WHERE user_id = $1 AND case_id = $2`,
		userID, caseID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query case role: %w", err)
	}
	return rolePermissions[role][permission], nil
}

// MemoryRBAC is an in-memory case membership table for tests and the memory
// backend.
type MemoryRBAC struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]map[uuid.UUID]string // user → case → role
}

// NewMemoryRBAC creates an empty MemoryRBAC.
func NewMemoryRBAC() *MemoryRBAC {
	return &MemoryRBAC{roles: make(map[uuid.UUID]map[uuid.UUID]string)}
}

// Grant assigns role to user on caseID, replacing any previous role.
func (r *MemoryRBAC) Grant(userID, caseID uuid.UUID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[userID] == nil {
		r.roles[userID] = make(map[uuid.UUID]string)
	}
	r.roles[userID][caseID] = role
}

// HasPermission implements RBAC.
func (r *MemoryRBAC) HasPermission(_ context.Context, userID, caseID uuid.UUID, permission string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return rolePermissions[r.roles[userID][caseID]][permission], nil
}
