package enums

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	UserRoleDriver   UserRole = "driver"
	UserRoleOperator UserRole = "operator"
	UserRoleAdmin    UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleDriver,
	UserRoleOperator,
	UserRoleAdmin,
}

func (u UserRole) IsValid() bool { return isOneOf(u, validUserRoles) }

func ParseUserRole(value string) (UserRole, error) {
	return parseOneOf("user role", value, validUserRoles)
}

// CanOperateStations reports whether the role may manage stations and chargers.
func (u UserRole) CanOperateStations() bool {
	return u == UserRoleOperator || u == UserRoleAdmin
}
