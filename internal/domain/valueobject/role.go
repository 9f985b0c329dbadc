package valueobject

import (
	"strings"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
)

const (
	RoleNameUser      = "user"
	RoleNameAdmin     = "admin"
	RoleNameModerator = "moderator"
)

var validRoles = []string{RoleNameUser, RoleNameAdmin, RoleNameModerator}

// Role is one of the fixed authorization tags.
type Role struct {
	value string
}

var (
	RoleUser      = Role{value: RoleNameUser}
	RoleAdmin     = Role{value: RoleNameAdmin}
	RoleModerator = Role{value: RoleNameModerator}
)

func NewRole(name string) (Role, error) {
	if name == "" {
		return Role{}, domain.InvalidValue("roles", "role must be a non-empty string")
	}
	for _, r := range validRoles {
		if r == name {
			return Role{value: name}, nil
		}
	}
	return Role{}, domain.InvalidValue("roles", "invalid role. Must be one of: "+strings.Join(validRoles, ", "))
}

func (r Role) Value() string { return r.value }

func (r Role) Equals(other Role) bool { return r.value == other.value }

func (r Role) IsAdmin() bool { return r.value == RoleNameAdmin }

func (r Role) IsModerator() bool { return r.value == RoleNameModerator }

func (r Role) String() string { return r.value }

// RoleNames projects roles to their plain string values.
func RoleNames(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.value)
	}
	return out
}
