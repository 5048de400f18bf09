package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var ErrPresenceDisabled = fmt.Errorf("%w: presence tracking is disabled", ErrTransientStorage)

// PresenceReader answers presence lookups across server instances.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID uuid.UUID) (bool, error)
	LastSeen(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	Online(ctx context.Context) ([]uuid.UUID, error)
}

type PresenceStatus struct {
	UserID   uuid.UUID  `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PresenceService decides who may see whose presence. A user's contacts are
// everyone sharing a workspace or an open conversation with them.
type PresenceService struct {
	workspaces    repository.WorkspaceRepository
	conversations repository.ConversationRepository
	reader        PresenceReader
}

func NewPresenceService(workspaces repository.WorkspaceRepository, conversations repository.ConversationRepository) *PresenceService {
	return &PresenceService{workspaces: workspaces, conversations: conversations}
}

// SetReader sets the presence backend (optional dependency).
func (s *PresenceService) SetReader(r PresenceReader) {
	s.reader = r
}

// Contacts lists the users who share a workspace or an open conversation
// with userID, userID itself excluded.
func (s *PresenceService) Contacts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})

	workspaces, err := s.workspaces.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	for _, ws := range workspaces {
		members, err := s.workspaces.ListMembers(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("listing members: %w", err)
		}
		for _, m := range members {
			seen[m.UserID] = struct{}{}
		}
	}

	convs, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	for i := range convs {
		if convs[i].Retired() {
			continue
		}
		for _, id := range convs[i].ParticipantIDs() {
			seen[id] = struct{}{}
		}
	}

	delete(seen, userID)
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Status reports whether userID is online. Someone who is not a contact of
// requesterID looks like an unknown user.
func (s *PresenceService) Status(ctx context.Context, requesterID, userID uuid.UUID) (*PresenceStatus, error) {
	if s.reader == nil {
		return nil, ErrPresenceDisabled
	}
	if requesterID != userID {
		contacts, err := s.Contacts(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(contacts, userID) {
			return nil, ErrUserNotFound
		}
	}

	online, err := s.reader.IsOnline(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}
	status := &PresenceStatus{UserID: userID, Online: online}
	if !online {
		status.LastSeen, err = s.reader.LastSeen(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
		}
	}
	return status, nil
}

// OnlineContacts lists the contacts of userID that are online right now.
func (s *PresenceService) OnlineContacts(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	if s.reader == nil {
		return nil, ErrPresenceDisabled
	}
	contacts, err := s.Contacts(ctx, userID)
	if err != nil {
		return nil, err
	}
	online, err := s.reader.Online(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
	}

	isOnline := make(map[uuid.UUID]struct{}, len(online))
	for _, id := range online {
		isOnline[id] = struct{}{}
	}
	out := []uuid.UUID{}
	for _, id := range contacts {
		if _, ok := isOnline[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}
