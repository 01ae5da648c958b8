package usecase

import "github.com/devricklin/feishu-guard-bot/internal/biz/domain"

// RolesOf derives the sender's stacked roles from the message flags.
// Recomputed for every message since group admin status can change between messages.
func RolesOf(msg *domain.NormalizedMessage) domain.RoleSet {
	switch {
	case msg.IsBotOwner:
		return domain.RoleSet{domain.RoleOwner, domain.RoleGroupModerator, domain.RoleMember}
	case msg.IsGroupAdmin:
		return domain.RoleSet{domain.RoleGroupModerator, domain.RoleMember}
	default:
		return domain.RoleSet{domain.RoleMember}
	}
}

// HasPermission reports whether the sender holds any of required.
// An empty requirement is public.
func HasPermission(msg *domain.NormalizedMessage, required ...domain.Role) bool {
	if len(required) == 0 {
		return true
	}
	return RolesOf(msg).Intersects(required)
}
