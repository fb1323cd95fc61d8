package model

import "strings"

// Role is the portal role carried by a signed-in user and by every
// role-scoped notification.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleAdmin       Role = "ADMIN"
	RolePublisher   Role = "PUBLISHER"
	RoleCreator     Role = "CREATOR"
	RoleEditor      Role = "EDITOR"
	RoleContributor Role = "CONTRIBUTOR"
)

// ParseRole normalizes a role string from the API or a token claim.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Initials returns the short badge label for the role.
func (r Role) Initials() string {
	switch r {
	case "":
		return "U"
	case RoleSuperAdmin:
		return "SA"
	case RoleAdmin:
		return "A"
	case RolePublisher:
		return "P"
	case RoleCreator:
		return "CR"
	case RoleEditor:
		return "E"
	case RoleContributor:
		return "C"
	default:
		return strings.ToUpper(string(r)[:1])
	}
}

// CanReview reports whether the role receives approval requests.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ApprovalAudiences lists the roles whose approval events a viewer with
// this role follows. A super admin also sees requests addressed to admins.
func (r Role) ApprovalAudiences() []Role {
	switch r {
	case RoleSuperAdmin:
		return []Role{RoleAdmin, RoleSuperAdmin}
	case RoleAdmin:
		return []Role{RoleAdmin}
	default:
		return nil
	}
}
