package scope

import "fmt"

// Role is the closed set of actor roles. Precedence in visibility rules is
// admin > project_manager > engineer/technician.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleEngineer       Role = "engineer"
	RoleTechnician     Role = "technician"
)

// ParseRole validates a raw role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleProjectManager, RoleEngineer, RoleTechnician:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the immutable per-request identity context. It is produced by
// the auth layer once and passed explicitly into every downstream call; the
// core keeps no ambient session state.
type Identity struct {
	ActorID string
	Role    Role
}

// Scoped reports whether the identity's visibility is limited to projects the
// actor belongs to (engineer/technician).
func (id Identity) Scoped() bool {
	return id.Role == RoleEngineer || id.Role == RoleTechnician
}

// Manages reports whether the identity may hold org-level management rights.
func (id Identity) Manages() bool {
	return id.Role == RoleAdmin || id.Role == RoleProjectManager
}
