package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var (
	ErrChannelNotFound  = access.ErrChannelNotFound
	ErrChannelNameTaken = fmt.Errorf("%w: channel name already exists in this workspace", ErrInvalidState)
	ErrNotChannelMember = fmt.Errorf("%w: user is not an explicit member of this channel", ErrNotFound)
	ErrInvalidRole      = fmt.Errorf("%w: unknown channel role", ErrInvalidInput)
)

type ChannelService struct {
	channelRepo   repository.ChannelRepository
	workspaceRepo repository.WorkspaceRepository
	resolver      *access.Resolver
	purger        ScopePurger
	publisher     Publisher
	locker        ScopeLocker
}

func NewChannelService(
	channelRepo repository.ChannelRepository,
	workspaceRepo repository.WorkspaceRepository,
	resolver *access.Resolver,
	purger ScopePurger,
) *ChannelService {
	return &ChannelService{
		channelRepo:   channelRepo,
		workspaceRepo: workspaceRepo,
		resolver:      resolver,
		purger:        purger,
		publisher:     nopPublisher{},
		locker:        &scopeLocks{},
	}
}

func (s *ChannelService) SetPublisher(p Publisher) {
	s.publisher = publisherOrNop(p)
}

// SetScopeLocker shares the dispatcher's scope locks, so a delete waits for
// sends in flight and later sends find the channel gone.
func (s *ChannelService) SetScopeLocker(l ScopeLocker) {
	if l != nil {
		s.locker = l
	}
}

type CreateChannelInput struct {
	Name        string `json:"name" validate:"required,min=1,max=80"`
	Description string `json:"description" validate:"max=500"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=public private"`
}

type UpdateChannelInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=80"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Visibility  *string `json:"visibility" validate:"omitempty,oneof=public private"`
}

type ChannelWithRole struct {
	domain.Channel
	Role         string              `json:"role"`
	Capabilities []access.Capability `json:"capabilities"`
}

func withRole(ch domain.Channel, role access.Role) ChannelWithRole {
	return ChannelWithRole{Channel: ch, Role: role.String(), Capabilities: access.Capabilities(role)}
}

func (s *ChannelService) Create(ctx context.Context, userID, workspaceID uuid.UUID, input CreateChannelInput) (*domain.Channel, error) {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, workspaceID, access.CapCreateChannel); err != nil {
		return nil, err
	}

	visibility := domain.Visibility(input.Visibility)
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	ch := &domain.Channel{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        strings.TrimSpace(input.Name),
		Description: desc,
		Visibility:  visibility,
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
	}

	if err := s.channelRepo.Create(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrChannelNameTaken
		}
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	// Dodaj creatora kao admin membera
	cm := &domain.ChannelMember{
		ChannelID: ch.ID,
		UserID:    userID,
		Role:      access.RoleAdmin.String(),
		JoinedAt:  time.Now(),
	}
	if err := s.channelRepo.AddMember(ctx, cm); err != nil {
		return nil, fmt.Errorf("adding creator as member: %w", err)
	}

	return ch, nil
}

func (s *ChannelService) GetByID(ctx context.Context, userID, channelID uuid.UUID) (*ChannelWithRole, error) {
	ch, role, err := s.resolver.AuthorizeChannel(ctx, userID, channelID, access.CapRead)
	if err != nil {
		return nil, err
	}
	cwr := withRole(*ch, role)
	return &cwr, nil
}

// ListByWorkspace returns the channels of the workspace the user can see.
func (s *ChannelService) ListByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]ChannelWithRole, error) {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, workspaceID, access.CapReadWorkspace); err != nil {
		return nil, err
	}

	channels, err := s.channelRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	visible := []ChannelWithRole{}
	for i := range channels {
		role, err := s.resolver.ChannelRole(ctx, userID, &channels[i])
		if err != nil {
			return nil, err
		}
		if role == access.RoleNone {
			continue
		}
		visible = append(visible, withRole(channels[i], role))
	}
	return visible, nil
}

func (s *ChannelService) Update(ctx context.Context, userID, channelID uuid.UUID, input UpdateChannelInput) (*domain.Channel, error) {
	ch, _, err := s.resolver.AuthorizeChannel(ctx, userID, channelID, access.CapModifyChannel)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		ch.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		ch.Description = input.Description
	}
	if input.Visibility != nil {
		ch.Visibility = domain.Visibility(*input.Visibility)
	}

	if err := s.channelRepo.Update(ctx, ch); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrChannelNameTaken
		}
		return nil, fmt.Errorf("updating channel: %w", err)
	}

	return ch, nil
}

// Delete purges the channel's messages and read state, then removes the
// channel and evicts its room. A failed purge leaves the channel in place,
// so the delete can be retried.
func (s *ChannelService) Delete(ctx context.Context, userID, channelID uuid.UUID) error {
	ch, _, err := s.resolver.AuthorizeChannel(ctx, userID, channelID, access.CapDeleteChannel)
	if err != nil {
		return err
	}

	scope := ch.Scope()
	unlock := s.locker.LockScope(scope)
	defer unlock()

	if err := s.purger.PurgeScope(ctx, scope); err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("purging channel failed")
		return fmt.Errorf("purging channel: %w", err)
	}

	if err := s.channelRepo.Delete(ctx, ch.ID); err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}

	s.publisher.Publish(EventChannelDeleted, ch, Target{Rooms: []string{scope.Room()}})
	s.publisher.CloseRoom(scope.Room())
	return nil
}

// AddMember adds userID as an explicit member. Workspace members may join a
// public channel themselves; anything else needs manageMembers.
func (s *ChannelService) AddMember(ctx context.Context, requesterID, channelID, userID uuid.UUID) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}

	if !(ch.IsPublic() && requesterID == userID) {
		if _, _, err := s.resolver.AuthorizeChannel(ctx, requesterID, channelID, access.CapManageMembers); err != nil {
			return err
		}
	}

	// Provjeri da je user member workspace-a
	wsMember, err := s.workspaceRepo.GetMember(ctx, ch.WorkspaceID, userID)
	if err != nil {
		return err
	}
	if wsMember == nil {
		return ErrNotMember
	}

	existing, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyMember
	}

	member := &domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      access.RoleMember.String(),
		JoinedAt:  time.Now(),
	}
	if err := s.channelRepo.AddMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyMember
		}
		return err
	}
	return nil
}

func (s *ChannelService) RemoveMember(ctx context.Context, requesterID, channelID, userID uuid.UUID) error {
	if requesterID != userID {
		if _, _, err := s.resolver.AuthorizeChannel(ctx, requesterID, channelID, access.CapManageMembers); err != nil {
			return err
		}
	}

	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}

	existing, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotChannelMember
	}

	if err := s.channelRepo.RemoveMember(ctx, channelID, userID); err != nil {
		return err
	}
	// Public kanal i dalje cita kao clan workspace-a
	if !ch.IsPublic() {
		s.publisher.UnsubscribeUser(userID, ch.Scope().Room())
	}
	return nil
}

// SetMemberRole changes the role of an explicit member.
func (s *ChannelService) SetMemberRole(ctx context.Context, requesterID, channelID, userID uuid.UUID, roleName string) error {
	role, ok := access.ParseChannelRole(roleName)
	if !ok {
		return ErrInvalidRole
	}
	if _, _, err := s.resolver.AuthorizeChannel(ctx, requesterID, channelID, access.CapManageRoles); err != nil {
		return err
	}

	existing, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotChannelMember
	}
	return s.channelRepo.UpdateMemberRole(ctx, channelID, userID, role.String())
}

func (s *ChannelService) ListMembers(ctx context.Context, userID, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	if _, _, err := s.resolver.AuthorizeChannel(ctx, userID, channelID, access.CapRead); err != nil {
		return nil, err
	}
	members, err := s.channelRepo.ListMembers(ctx, channelID)
	if members == nil {
		members = []domain.ChannelMember{}
	}
	return members, err
}
