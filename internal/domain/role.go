package domain

// Role constants define the allowed user roles.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
	RoleGuest    = "guest"
)

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = RoleEmployee

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleAdmin, RoleManager, RoleEmployee, RoleGuest}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}
