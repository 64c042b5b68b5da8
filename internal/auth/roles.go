package auth

// Admin role constants. Viewer can read world state; admin and superadmin
// can reschedule events and adjust stockpiles.
const (
	RoleViewer     = "viewer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// WriteRoles returns roles that can modify data.
func WriteRoles() []string {
	return []string{RoleAdmin, RoleSuperAdmin}
}
