package models

import "fmt"

// Role enumerates the identities the platform recognises. The set is closed;
// there is no user-defined role table.
type Role string

const (
	// RolePlatformOperator is the single cross-school administrative identity.
	// It is provisioned through configuration and never carries a school id.
	RolePlatformOperator Role = "platform-operator"

	// RoleTenantAdmin administers a single school.
	RoleTenantAdmin Role = "tenant-admin"

	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

// roleRanks fixes the total order used by the role-hierarchy guard:
// platform-operator > tenant-admin > teacher > parent.
var roleRanks = map[Role]int{
	RoleParent:           1,
	RoleTeacher:          2,
	RoleTenantAdmin:      3,
	RolePlatformOperator: 4,
}

// Valid reports whether the role is one of the recognised values.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the role's position in the hierarchy. Unknown roles rank
// below every recognised role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Outranks reports whether r sits strictly above other in the hierarchy.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// TenantScoped reports whether identities with this role must carry a school id.
func (r Role) TenantScoped() bool {
	return r.Valid() && r != RolePlatformOperator
}

func (r Role) String() string {
	return string(r)
}

// ParseRole validates a wire-format role string.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("models: unknown role %q", value)
	}
	return role, nil
}

// TenantRoles returns the roles assignable to school-scoped accounts.
func TenantRoles() []Role {
	return []Role{RoleTenantAdmin, RoleTeacher, RoleParent}
}
