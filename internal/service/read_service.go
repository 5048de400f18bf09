package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
)

// ReadEvent is the payload of all-read.
type ReadEvent struct {
	Scope             domain.Scope `json:"scope"`
	Count             int          `json:"count"`
	LastReadMessageID *uuid.UUID   `json:"last_read_message_id,omitempty"`
}

type UnreadSummary struct {
	Total  int                  `json:"total"`
	Scopes []domain.UnreadState `json:"scopes"`
}

// ReadService is what clients use to read, list and acknowledge their
// unread state and notifications.
type ReadService struct {
	resolver      *access.Resolver
	ledger        *UnreadLedger
	notifications *NotificationStore
	publisher     Publisher
}

func NewReadService(resolver *access.Resolver, ledger *UnreadLedger, notifications *NotificationStore) *ReadService {
	return &ReadService{
		resolver:      resolver,
		ledger:        ledger,
		notifications: notifications,
		publisher:     nopPublisher{},
	}
}

func (s *ReadService) SetPublisher(p Publisher) {
	s.publisher = publisherOrNop(p)
}

// MarkRead marks scope read up to upto.
func (s *ReadService) MarkRead(ctx context.Context, userID uuid.UUID, scope domain.Scope, upto uuid.UUID) (*domain.UnreadState, error) {
	if err := s.resolver.AuthorizeScope(ctx, userID, scope, access.CapRead); err != nil {
		return nil, err
	}
	state, err := s.ledger.MarkRead(ctx, userID, scope, upto)
	if err != nil {
		return nil, err
	}
	publishReadState(s.publisher, userID, state)
	return state, nil
}

func (s *ReadService) MarkAllRead(ctx context.Context, userID uuid.UUID, scope domain.Scope) (*domain.UnreadState, error) {
	if err := s.resolver.AuthorizeScope(ctx, userID, scope, access.CapRead); err != nil {
		return nil, err
	}
	state, err := s.notifications.MarkAllRead(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	publishReadState(s.publisher, userID, state)
	return state, nil
}

func (s *ReadService) Unread(ctx context.Context, userID uuid.UUID, workspaceID *uuid.UUID) (*UnreadSummary, error) {
	if workspaceID != nil {
		if _, err := s.resolver.AuthorizeWorkspace(ctx, userID, *workspaceID, access.CapReadWorkspace); err != nil {
			return nil, err
		}
	}
	states, err := s.ledger.ListScopesWithUnread(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	summary := &UnreadSummary{Scopes: states}
	for _, st := range states {
		summary.Total += st.Count
	}
	return summary, nil
}

func (s *ReadService) Notifications(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	return s.notifications.List(ctx, userID, onlyUnread, limit)
}

func (s *ReadService) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) (*domain.Notification, error) {
	n, state, err := s.notifications.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}
	publishReadState(s.publisher, userID, state)
	return n, nil
}

// publishReadState tells the reader's other devices about the new read state.
func publishReadState(p Publisher, userID uuid.UUID, state *domain.UnreadState) {
	if p == nil || state == nil {
		return
	}
	p.Publish(EventAllRead, ReadEvent{
		Scope:             state.Scope,
		Count:             state.Count,
		LastReadMessageID: state.LastReadMessageID,
	}, Target{Users: []uuid.UUID{userID}})
}
