package domain

// Role is a permission tier. Roles stack: Owner holds GroupModerator, which holds Member.
type Role int

const (
	RoleMember Role = iota
	RoleGroupModerator
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleGroupModerator:
		return "group_moderator"
	case RoleMember:
		return "member"
	default:
		return "unknown"
	}
}

// RoleSet is an ordered set of roles, highest first
type RoleSet []Role

// Has reports whether the set contains r
func (s RoleSet) Has(r Role) bool {
	for _, role := range s {
		if role == r {
			return true
		}
	}
	return false
}

// Intersects reports whether any of roles is in the set
func (s RoleSet) Intersects(roles []Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Highest returns the top role, Member for an empty set
func (s RoleSet) Highest() Role {
	if len(s) == 0 {
		return RoleMember
	}
	return s[0]
}
