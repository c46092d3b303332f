package auth

import "strings"

// Role grants access to a group of routes.
type Role string

const (
	// RoleViewer reads telemetry and the catalog.
	RoleViewer Role = "viewer"
	// RoleOperator also triggers syncs and renames scales.
	RoleOperator Role = "operator"
)

// NormalizeRole validates a role claim. Unknown roles are rejected.
func NormalizeRole(value string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(value))); role {
	case RoleViewer, RoleOperator:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast reports whether role satisfies required.
func RoleAtLeast(role, required Role) bool {
	return rank(role) >= rank(required)
}

func rank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	}
	return 0
}
