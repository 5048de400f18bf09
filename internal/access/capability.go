package access

// Capability is an action on a channel or conversation.
type Capability string

const (
	CapRead             Capability = "read"
	CapSend             Capability = "send"
	CapUploadFile       Capability = "uploadFile"
	CapDeleteAnyMessage Capability = "deleteAnyMessage"
	CapManageFiles      Capability = "manageFiles"
	CapManageMembers    Capability = "manageMembers"
	CapModifyChannel    Capability = "modifyChannel"
	CapDeleteChannel    Capability = "deleteChannel"
	CapManageRoles      Capability = "manageRoles"
)

// WorkspaceCapability is an action on a workspace.
type WorkspaceCapability string

const (
	CapCreateChannel          WorkspaceCapability = "createChannel"
	CapReadWorkspace          WorkspaceCapability = "readWorkspace"
	CapManageWorkspaceMembers WorkspaceCapability = "manageWorkspaceMembers"
	CapModifyWorkspace        WorkspaceCapability = "modifyWorkspace"
)

var minimumRole = map[Capability]Role{
	CapRead:             RoleMember,
	CapSend:             RoleMember,
	CapUploadFile:       RoleMember,
	CapDeleteAnyMessage: RoleModerator,
	CapManageFiles:      RoleModerator,
	CapManageMembers:    RoleModerator,
	CapModifyChannel:    RoleAdmin,
	CapDeleteChannel:    RoleAdmin,
	CapManageRoles:      RoleAdmin,
}

var minimumWorkspaceRole = map[WorkspaceCapability]Role{
	CapCreateChannel:          RoleMember,
	CapReadWorkspace:          RoleMember,
	CapManageWorkspaceMembers: RoleAdmin,
	CapModifyWorkspace:        RoleAdmin,
}

// Can reports whether role grants capability. Unknown capabilities are denied.
func Can(role Role, capability Capability) bool {
	min, ok := minimumRole[capability]
	if !ok || role == RoleNone {
		return false
	}
	return role.AtLeast(min)
}

func CanInWorkspace(role Role, capability WorkspaceCapability) bool {
	min, ok := minimumWorkspaceRole[capability]
	if !ok || role == RoleNone {
		return false
	}
	return role.AtLeast(min)
}

// Capabilities lists everything role grants on a channel.
func Capabilities(role Role) []Capability {
	var caps []Capability
	for _, c := range AllCapabilities() {
		if Can(role, c) {
			caps = append(caps, c)
		}
	}
	return caps
}

func AllCapabilities() []Capability {
	return []Capability{
		CapRead, CapSend, CapUploadFile,
		CapDeleteAnyMessage, CapManageFiles, CapManageMembers,
		CapModifyChannel, CapDeleteChannel, CapManageRoles,
	}
}
