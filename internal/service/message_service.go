package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var (
	ErrMessageNotFound = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrNotMessageOwner = fmt.Errorf("%w: only the message sender can perform this action", ErrForbidden)
	ErrEmptyMessage    = fmt.Errorf("%w: message content is empty", ErrInvalidInput)
)

type MessageService struct {
	messageRepo repository.MessageRepository
	resolver    *access.Resolver
	dispatcher  *Dispatcher
	ledger      *UnreadLedger
	publisher   Publisher
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	resolver *access.Resolver,
	dispatcher *Dispatcher,
	ledger *UnreadLedger,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		resolver:    resolver,
		dispatcher:  dispatcher,
		ledger:      ledger,
		publisher:   nopPublisher{},
	}
}

// SetPublisher sets the real-time publisher (optional dependency).
func (s *MessageService) SetPublisher(p Publisher) {
	s.publisher = publisherOrNop(p)
}

type SendMessageInput struct {
	Content  string      `json:"content" validate:"required,max=8000"`
	ParentID *uuid.UUID  `json:"parent_id,omitempty"`
	Mentions []uuid.UUID `json:"mentions,omitempty" validate:"max=100"`
}

type EditMessageInput struct {
	Content string `json:"content" validate:"required,max=8000"`
}

type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// Send authorizes the sender and hands the message to the dispatcher, which
// stores and fans it out under the scope lock. A failed send is never
// visible.
func (s *MessageService) Send(ctx context.Context, userID uuid.UUID, scope domain.Scope, input SendMessageInput) (*domain.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	var workspaceID *uuid.UUID
	switch scope.Kind {
	case domain.ScopeChannel:
		ch, _, err := s.resolver.AuthorizeChannel(ctx, userID, scope.ID, access.CapSend)
		if err != nil {
			return nil, err
		}
		wsID := ch.WorkspaceID
		workspaceID = &wsID
	case domain.ScopeConversation:
		if _, _, err := s.resolver.AuthorizeConversation(ctx, userID, scope.ID, access.CapSend); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown scope kind %q", ErrInvalidInput, scope.Kind)
	}

	msg := &domain.Message{
		Scope:       scope,
		WorkspaceID: workspaceID,
		SenderID:    userID,
		Content:     &content,
		Type:        "text",
		ParentID:    input.ParentID,
		Mentions:    sortedUnique(input.Mentions),
	}

	if _, err := s.dispatcher.Dispatch(ctx, msg, s.messageRepo); err != nil {
		return nil, err
	}

	return msg, nil
}

// List pages backwards through scope. Loading the newest page also marks
// the scope read up to the newest message returned.
func (s *MessageService) List(ctx context.Context, userID uuid.UUID, scope domain.Scope, before *uuid.UUID, limit int) (*MessageListResponse, error) {
	if err := s.resolver.AuthorizeScope(ctx, userID, scope, access.CapRead); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	// Dohvati limit+1 da znamo ima li jos
	messages, err := s.messageRepo.ListByScope(ctx, scope, before, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[len(messages)-limit:] // zadrzi zadnjih "limit" (najnovije)
	}

	if messages == nil {
		messages = []domain.Message{}
	}

	if before == nil && len(messages) > 0 {
		newest := messages[len(messages)-1].ID
		state, err := s.ledger.MarkRead(ctx, userID, scope, newest)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Str("scope", scope.String()).Msg("mark read on fetch failed")
		} else {
			publishReadState(s.publisher, userID, state)
		}
	}

	return &MessageListResponse{
		Messages: messages,
		HasMore:  hasMore,
	}, nil
}

func (s *MessageService) Edit(ctx context.Context, userID, messageID uuid.UUID, input EditMessageInput) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.DeletedAt != nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageOwner
	}
	if err := s.resolver.AuthorizeScope(ctx, userID, msg.Scope, access.CapSend); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	msg.Content = &content
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}

	s.dispatcher.NotifyEdited(msg)
	return msg, nil
}

// Delete is allowed to the sender and to anyone holding deleteAnyMessage.
func (s *MessageService) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.DeletedAt != nil {
		return ErrMessageNotFound
	}

	if msg.SenderID == userID {
		if err := s.resolver.AuthorizeScope(ctx, userID, msg.Scope, access.CapRead); err != nil {
			return err
		}
	} else {
		if err := s.resolver.AuthorizeScope(ctx, userID, msg.Scope, access.CapDeleteAnyMessage); err != nil {
			if errors.Is(err, ErrForbidden) {
				return ErrNotMessageOwner
			}
			return err
		}
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	s.dispatcher.NotifyDeleted(msg.Scope, messageID)
	return nil
}
