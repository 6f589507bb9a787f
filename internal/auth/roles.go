package auth

// Role represents an effective role resolved by the session guard.
type Role string

const (
	RoleMasterAdmin   Role = "master_admin"
	RoleCustomerAdmin Role = "customer_admin"
	RoleCustomerOps   Role = "customer_ops"
	RoleAnalyst       Role = "analyst"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleMasterAdmin, RoleCustomerAdmin, RoleCustomerOps, RoleAnalyst:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleIn returns true when role is one of the allowed roles.
func RoleIn(role Role, allowed ...Role) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// MutatingRoles are the roles permitted to perform state-changing operations.
func MutatingRoles() []Role {
	return []Role{RoleMasterAdmin, RoleCustomerAdmin, RoleCustomerOps}
}
