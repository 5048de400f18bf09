package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var (
	ErrWorkspaceNotFound = access.ErrWorkspaceNotFound
	ErrSlugTaken         = fmt.Errorf("%w: workspace slug already taken", ErrInvalidState)
	ErrNotMember         = fmt.Errorf("%w: user is not a member of this workspace", ErrNotFound)
	ErrAlreadyMember     = fmt.Errorf("%w: user is already a member", ErrInvalidState)
)

type WorkspaceService struct {
	workspaceRepo repository.WorkspaceRepository
	userRepo      repository.UserRepository
	resolver      *access.Resolver
}

func NewWorkspaceService(workspaceRepo repository.WorkspaceRepository, userRepo repository.UserRepository, resolver *access.Resolver) *WorkspaceService {
	return &WorkspaceService{
		workspaceRepo: workspaceRepo,
		userRepo:      userRepo,
		resolver:      resolver,
	}
}

type CreateWorkspaceInput struct {
	Name        string `json:"name" validate:"required,min=1,max=80"`
	Slug        string `json:"slug" validate:"max=80"`
	Description string `json:"description" validate:"max=500"`
}

type UpdateWorkspaceInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=80"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type AddWorkspaceMemberInput struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role" validate:"omitempty,oneof=member admin"`
}

func (s *WorkspaceService) Create(ctx context.Context, userID uuid.UUID, input CreateWorkspaceInput) (*domain.Workspace, error) {
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(input.Name)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: workspace needs a name", ErrInvalidInput)
	}

	existing, err := s.workspaceRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSlugTaken
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	ws := &domain.Workspace{
		ID:          uuid.New(),
		Name:        input.Name,
		Slug:        slug,
		Description: desc,
		OwnerID:     userID,
		CreatedAt:   time.Now(),
	}

	if err := s.workspaceRepo.Create(ctx, ws); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	// Dodaj owner-a kao member sa ulogom "owner"
	member := &domain.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      userID,
		Role:        "owner",
		JoinedAt:    time.Now(),
	}
	if err := s.workspaceRepo.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("adding owner as member: %w", err)
	}

	return ws, nil
}

func (s *WorkspaceService) GetByID(ctx context.Context, userID, workspaceID uuid.UUID) (*domain.Workspace, error) {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, workspaceID, access.CapReadWorkspace); err != nil {
		return nil, err
	}

	ws, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrWorkspaceNotFound
	}

	return ws, nil
}

func (s *WorkspaceService) Update(ctx context.Context, userID, workspaceID uuid.UUID, input UpdateWorkspaceInput) (*domain.Workspace, error) {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, workspaceID, access.CapModifyWorkspace); err != nil {
		return nil, err
	}

	ws, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, ErrWorkspaceNotFound
	}

	if input.Name != nil {
		ws.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		ws.Description = input.Description
	}

	if err := s.workspaceRepo.Update(ctx, ws); err != nil {
		return nil, fmt.Errorf("updating workspace: %w", err)
	}
	return ws, nil
}

func (s *WorkspaceService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Workspace, error) {
	list, err := s.workspaceRepo.ListByUser(ctx, userID)
	if list == nil {
		list = []domain.Workspace{}
	}
	return list, err
}

func (s *WorkspaceService) AddMember(ctx context.Context, requesterID, workspaceID uuid.UUID, input AddWorkspaceMemberInput) error {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, requesterID, workspaceID, access.CapManageWorkspaceMembers); err != nil {
		return err
	}

	// Provjeri da user postoji
	user, err := s.userRepo.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	role := input.Role
	if role == "" {
		role = "member"
	}

	member := &domain.WorkspaceMember{
		WorkspaceID: workspaceID,
		UserID:      input.UserID,
		Role:        role,
		JoinedAt:    time.Now(),
	}
	if err := s.workspaceRepo.AddMember(ctx, member); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyMember
		}
		return err
	}
	return nil
}

func (s *WorkspaceService) RemoveMember(ctx context.Context, requesterID, workspaceID, userID uuid.UUID) error {
	if requesterID != userID {
		if _, err := s.resolver.AuthorizeWorkspace(ctx, requesterID, workspaceID, access.CapManageWorkspaceMembers); err != nil {
			return err
		}
	}

	ws, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws == nil {
		return ErrWorkspaceNotFound
	}
	if ws.OwnerID == userID {
		return fmt.Errorf("%w: the owner cannot leave the workspace", ErrInvalidState)
	}

	return s.workspaceRepo.RemoveMember(ctx, workspaceID, userID)
}

func (s *WorkspaceService) ListMembers(ctx context.Context, userID, workspaceID uuid.UUID) ([]domain.WorkspaceMember, error) {
	if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, workspaceID, access.CapReadWorkspace); err != nil {
		return nil, err
	}

	members, err := s.workspaceRepo.ListMembers(ctx, workspaceID)
	if members == nil {
		members = []domain.WorkspaceMember{}
	}
	return members, err
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9-]`)
var multiDash = regexp.MustCompile(`-{2,}`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multiDash.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}
