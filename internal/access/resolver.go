package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var (
	ErrChannelNotFound      = fmt.Errorf("%w: channel not found", domain.ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("%w: conversation not found", domain.ErrNotFound)
	ErrWorkspaceNotFound    = fmt.Errorf("%w: workspace not found", domain.ErrNotFound)
	ErrMissingCapability    = fmt.Errorf("%w: missing capability", domain.ErrForbidden)
)

// Resolver answers authorization questions from stored memberships.
// Without any membership a user simply has no capabilities; scopes the user
// cannot see at all are reported as not found.
type Resolver struct {
	channels      repository.ChannelRepository
	workspaces    repository.WorkspaceRepository
	conversations repository.ConversationRepository
}

func NewResolver(
	channels repository.ChannelRepository,
	workspaces repository.WorkspaceRepository,
	conversations repository.ConversationRepository,
) *Resolver {
	return &Resolver{
		channels:      channels,
		workspaces:    workspaces,
		conversations: conversations,
	}
}

// ChannelRole loads both memberships and computes the effective role.
func (r *Resolver) ChannelRole(ctx context.Context, userID uuid.UUID, ch *domain.Channel) (Role, error) {
	cm, err := r.channels.GetMember(ctx, ch.ID, userID)
	if err != nil {
		return RoleNone, fmt.Errorf("loading channel member: %w", err)
	}
	if cm != nil {
		if role := ParseRole(cm.Role); role != RoleNone {
			return role, nil
		}
	}
	if !ch.IsPublic() {
		return RoleNone, nil
	}
	wm, err := r.workspaces.GetMember(ctx, ch.WorkspaceID, userID)
	if err != nil {
		return RoleNone, fmt.Errorf("loading workspace member: %w", err)
	}
	return EffectiveRole(ch, cm, wm), nil
}

func (r *Resolver) AuthorizeChannel(ctx context.Context, userID, channelID uuid.UUID, capability Capability) (*domain.Channel, Role, error) {
	ch, err := r.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, RoleNone, fmt.Errorf("loading channel: %w", err)
	}
	if ch == nil {
		return nil, RoleNone, ErrChannelNotFound
	}

	role, err := r.ChannelRole(ctx, userID, ch)
	if err != nil {
		return nil, RoleNone, err
	}
	if role == RoleNone {
		return nil, RoleNone, ErrChannelNotFound
	}
	if !Can(role, capability) {
		return ch, role, fmt.Errorf("%w: %s on channel requires more than %s", ErrMissingCapability, capability, role)
	}
	return ch, role, nil
}

// AuthorizeConversation checks capability for a participant. Closed
// conversations still allow reading.
func (r *Resolver) AuthorizeConversation(ctx context.Context, userID, conversationID uuid.UUID, capability Capability) (*domain.PrivateConversation, Role, error) {
	conv, err := r.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, RoleNone, fmt.Errorf("loading conversation: %w", err)
	}
	role := ConversationRole(conv, userID)
	if role == RoleNone {
		return nil, RoleNone, ErrConversationNotFound
	}
	if conv.Retired() && capability != CapRead {
		return conv, role, domain.ErrConversationRetired
	}
	if !Can(role, capability) {
		return conv, role, fmt.Errorf("%w: %s on conversation requires more than %s", ErrMissingCapability, capability, role)
	}
	return conv, role, nil
}

func (r *Resolver) AuthorizeWorkspace(ctx context.Context, userID, workspaceID uuid.UUID, capability WorkspaceCapability) (Role, error) {
	wm, err := r.workspaces.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return RoleNone, fmt.Errorf("loading workspace member: %w", err)
	}
	role := EffectiveWorkspaceRole(wm)
	if role == RoleNone {
		return RoleNone, ErrWorkspaceNotFound
	}
	if !CanInWorkspace(role, capability) {
		return role, fmt.Errorf("%w: %s on workspace requires more than %s", ErrMissingCapability, capability, role)
	}
	return role, nil
}

// AuthorizeScope dispatches on the scope kind.
func (r *Resolver) AuthorizeScope(ctx context.Context, userID uuid.UUID, scope domain.Scope, capability Capability) error {
	switch scope.Kind {
	case domain.ScopeChannel:
		_, _, err := r.AuthorizeChannel(ctx, userID, scope.ID, capability)
		return err
	case domain.ScopeConversation:
		_, _, err := r.AuthorizeConversation(ctx, userID, scope.ID, capability)
		return err
	default:
		return fmt.Errorf("%w: unknown scope kind %q", domain.ErrNotFound, scope.Kind)
	}
}

// Audience is everyone who should account for a message in a scope.
type Audience struct {
	Scope       domain.Scope
	WorkspaceID *uuid.UUID
	Readers     []uuid.UUID
}

// Readers resolves the audience of scope: every workspace member for a
// public channel, the explicit members of a private one and the participants
// of a conversation. A retired conversation has no audience and fails with
// domain.ErrConversationRetired.
func (r *Resolver) Readers(ctx context.Context, scope domain.Scope) (*Audience, error) {
	switch scope.Kind {
	case domain.ScopeChannel:
		return r.channelReaders(ctx, scope)
	case domain.ScopeConversation:
		conv, err := r.conversations.GetByID(ctx, scope.ID)
		if err != nil {
			return nil, fmt.Errorf("loading conversation: %w", err)
		}
		if conv == nil {
			return nil, ErrConversationNotFound
		}
		if conv.Retired() {
			return nil, domain.ErrConversationRetired
		}
		return &Audience{Scope: scope, Readers: conv.ParticipantIDs()}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scope kind %q", domain.ErrNotFound, scope.Kind)
	}
}

func (r *Resolver) channelReaders(ctx context.Context, scope domain.Scope) (*Audience, error) {
	ch, err := r.channels.GetByID(ctx, scope.ID)
	if err != nil {
		return nil, fmt.Errorf("loading channel: %w", err)
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	workspaceID := ch.WorkspaceID
	aud := &Audience{Scope: scope, WorkspaceID: &workspaceID}
	seen := make(map[uuid.UUID]struct{})
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		aud.Readers = append(aud.Readers, id)
	}

	members, err := r.channels.ListMembers(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("listing channel members: %w", err)
	}
	for _, m := range members {
		if ParseRole(m.Role) != RoleNone {
			add(m.UserID)
		}
	}

	if ch.IsPublic() {
		wsMembers, err := r.workspaces.ListMembers(ctx, ch.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("listing workspace members: %w", err)
		}
		for _, m := range wsMembers {
			add(m.UserID)
		}
	}
	return aud, nil
}
