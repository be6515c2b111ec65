package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

// Actor is the authenticated caller a service acts on behalf of.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: enums.UserRoleAdmin}

func (a Actor) IsAdmin() bool { return a.Role == enums.UserRoleAdmin }

// CanManageStation reports whether the actor may mutate a station owned by operatorID.
func (a Actor) CanManageStation(operatorID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == enums.UserRoleOperator && a.UserID == operatorID
}
