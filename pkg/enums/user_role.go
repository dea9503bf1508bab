package enums

type UserRole string

const (
	UserRoleClient     UserRole = "client"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "super_admin"
)

func (r UserRole) String() string {
	return string(r)
}

// StaffRoles returns the roles notified about payment failures and churn.
func StaffRoles() []string {
	return []string{UserRoleAdmin.String(), UserRoleSuperAdmin.String()}
}
