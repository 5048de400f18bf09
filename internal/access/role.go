package access

import (
	"strings"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
)

// Role is ordered: a higher role holds every capability of a lower one.
type Role uint8

const (
	RoleNone Role = iota
	RoleMember
	RoleModerator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AtLeast reports whether r is min or above.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole maps a stored role name to a Role. Workspace owners are admins.
// Unknown names grant nothing.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "member":
		return RoleMember
	case "moderator":
		return RoleModerator
	case "admin", "owner":
		return RoleAdmin
	default:
		return RoleNone
	}
}

// ParseChannelRole is ParseRole restricted to the roles a channel membership
// may be assigned.
func ParseChannelRole(name string) (Role, bool) {
	r := ParseRole(name)
	if r == RoleNone || strings.EqualFold(strings.TrimSpace(name), "owner") {
		return RoleNone, false
	}
	return r, true
}

// EffectiveRole returns the role a user holds on ch. An explicit channel
// membership wins; otherwise members of the workspace are implicit members of
// its public channels. Either membership may be nil.
func EffectiveRole(ch *domain.Channel, cm *domain.ChannelMember, wm *domain.WorkspaceMember) Role {
	if ch == nil {
		return RoleNone
	}
	if cm != nil {
		if r := ParseRole(cm.Role); r != RoleNone {
			return r
		}
	}
	if ch.IsPublic() && wm != nil {
		return RoleMember
	}
	return RoleNone
}

// EffectiveWorkspaceRole collapses workspace roles to member or admin.
func EffectiveWorkspaceRole(wm *domain.WorkspaceMember) Role {
	if wm == nil {
		return RoleNone
	}
	switch ParseRole(wm.Role) {
	case RoleAdmin:
		return RoleAdmin
	case RoleNone:
		return RoleNone
	default:
		return RoleMember
	}
}

// ConversationRole: the owner administers, other participants are members.
func ConversationRole(conv *domain.PrivateConversation, userID uuid.UUID) Role {
	if conv == nil {
		return RoleNone
	}
	if conv.OwnerID == userID {
		return RoleAdmin
	}
	if conv.HasParticipant(userID) {
		return RoleMember
	}
	return RoleNone
}
