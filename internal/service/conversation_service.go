package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

var (
	ErrConversationNotFound = access.ErrConversationNotFound
	ErrUnacknowledgedClose  = fmt.Errorf("%w: closing a conversation must be acknowledged", ErrInvalidState)
)

// ConversationDirectory manages private conversations and their participants.
type ConversationDirectory struct {
	conversations repository.ConversationRepository
	users         repository.UserRepository
	resolver      *access.Resolver
	purger        ScopePurger
	publisher     Publisher
	locker        ScopeLocker
	now           func() time.Time
}

func NewConversationDirectory(
	conversations repository.ConversationRepository,
	users repository.UserRepository,
	resolver *access.Resolver,
	purger ScopePurger,
) *ConversationDirectory {
	return &ConversationDirectory{
		conversations: conversations,
		users:         users,
		resolver:      resolver,
		purger:        purger,
		publisher:     nopPublisher{},
		locker:        &scopeLocks{},
		now:           time.Now,
	}
}

func (s *ConversationDirectory) SetPublisher(p Publisher) {
	s.publisher = publisherOrNop(p)
}

// SetScopeLocker shares the dispatcher's scope locks, so a purge waits for
// sends in flight.
func (s *ConversationDirectory) SetScopeLocker(l ScopeLocker) {
	if l != nil {
		s.locker = l
	}
}

type CreateConversationInput struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids" validate:"required,min=1,max=50"`
	Title          *string     `json:"title,omitempty" validate:"omitempty,max=80"`
}

// Create opens a conversation between creatorID and participantIDs. For
// exactly two users an existing 1:1 conversation is returned instead, with
// created false.
func (s *ConversationDirectory) Create(ctx context.Context, creatorID uuid.UUID, participantIDs []uuid.UUID, title *string) (*domain.PrivateConversation, bool, error) {
	ids := domain.UniqueParticipants(creatorID, participantIDs)
	if len(ids) < 2 {
		return nil, false, domain.ErrInvalidParticipants
	}

	for _, id := range ids {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if u == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
	}

	if len(ids) == 2 {
		existing, err := s.Find1to1(ctx, ids[0], ids[1])
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	conv, err := domain.NewConversation(creatorID, ids, s.now())
	if err != nil {
		return nil, false, err
	}
	conv.Title = title

	if err := s.conversations.Create(ctx, conv); err != nil {
		// Another request created the same 1:1 first.
		if errors.Is(err, repository.ErrConflict) && len(ids) == 2 {
			existing, findErr := s.Find1to1(ctx, ids[0], ids[1])
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("creating conversation: %w", err)
	}

	room := conv.Scope().Room()
	for _, id := range conv.ParticipantIDs() {
		s.publisher.SubscribeUser(id, room)
	}
	s.publisher.Publish(EventConversationUpdated, conv, Target{Rooms: []string{room}})
	return conv, true, nil
}

func (s *ConversationDirectory) Find1to1(ctx context.Context, a, b uuid.UUID) (*domain.PrivateConversation, error) {
	return s.conversations.GetByDirectKey(ctx, domain.DirectKey(a, b))
}

func (s *ConversationDirectory) Get(ctx context.Context, userID, conversationID uuid.UUID) (*domain.PrivateConversation, error) {
	conv, _, err := s.resolver.AuthorizeConversation(ctx, userID, conversationID, access.CapRead)
	return conv, err
}

// AddParticipant lets any participant bring userID in. A 1:1 becomes a group.
func (s *ConversationDirectory) AddParticipant(ctx context.Context, actorID, conversationID, userID uuid.UUID) (*domain.PrivateConversation, error) {
	if _, _, err := s.resolver.AuthorizeConversation(ctx, actorID, conversationID, access.CapSend); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	conv, err := s.conversations.Update(ctx, conversationID, func(c *domain.PrivateConversation) error {
		return c.AddParticipant(userID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("adding participant: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	room := conv.Scope().Room()
	s.publisher.SubscribeUser(userID, room)
	s.publisher.Publish(EventConversationUpdated, conv, Target{Rooms: []string{room}})
	return conv, nil
}

// RemoveParticipant drops userID and hands ownership on when needed. When
// fewer than two participants remain the conversation is retired in the same
// update, so nobody can join it in between; announcing and purging is the
// caller's call.
func (s *ConversationDirectory) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Removal, error) {
	now := s.now()
	var removal *domain.Removal
	conv, err := s.conversations.Update(ctx, conversationID, func(c *domain.PrivateConversation) error {
		r, err := c.RemoveParticipant(userID)
		if err != nil {
			return err
		}
		if r.ShouldClose {
			c.Retire(now)
		}
		removal = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("removing participant: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	removal.Conversation = conv
	return removal, nil
}

// Retire closes the conversation for good and purges its messages and read
// state. The caller must acknowledge that with ack. Retiring a retired
// conversation runs the purge again, which finishes a purge that failed.
func (s *ConversationDirectory) Retire(ctx context.Context, conversationID uuid.UUID, ack bool) error {
	if !ack {
		return ErrUnacknowledgedClose
	}

	now := s.now()
	var alreadyRetired bool
	conv, err := s.conversations.Update(ctx, conversationID, func(c *domain.PrivateConversation) error {
		alreadyRetired = c.Retired()
		c.Retire(now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("retiring conversation: %w", err)
	}
	if conv == nil {
		return ErrConversationNotFound
	}

	return s.settleRetired(ctx, conv, !alreadyRetired)
}

// settleRetired tells the room the conversation closed, when announce is
// set, and purges what was stored against it.
func (s *ConversationDirectory) settleRetired(ctx context.Context, conv *domain.PrivateConversation, announce bool) error {
	scope := conv.Scope()
	unlock := s.locker.LockScope(scope)
	defer unlock()

	if announce {
		s.publisher.Publish(EventConversationClosed, conv, Target{Rooms: []string{scope.Room()}})
		s.publisher.CloseRoom(scope.Room())
	}

	if err := s.purger.PurgeScope(ctx, scope); err != nil {
		log.Error().Err(err).Str("scope", scope.String()).Msg("purging retired conversation failed")
		return fmt.Errorf("purging conversation: %w", err)
	}
	return nil
}

// Close is Retire on behalf of actorID, who must own the conversation.
// Closing a closed conversation succeeds and retries its purge.
func (s *ConversationDirectory) Close(ctx context.Context, actorID, conversationID uuid.UUID, ack bool) error {
	_, role, err := s.resolver.AuthorizeConversation(ctx, actorID, conversationID, access.CapDeleteChannel)
	if errors.Is(err, domain.ErrConversationRetired) {
		if !access.Can(role, access.CapDeleteChannel) {
			return fmt.Errorf("%w: only the owner may close a conversation", access.ErrMissingCapability)
		}
		err = nil
	}
	if err != nil {
		return err
	}
	return s.Retire(ctx, conversationID, ack)
}

// Leave removes userID from the conversation and closes it when fewer than
// two participants remain.
func (s *ConversationDirectory) Leave(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Removal, error) {
	if _, _, err := s.resolver.AuthorizeConversation(ctx, userID, conversationID, access.CapRead); err != nil {
		return nil, err
	}
	return s.removeAndSettle(ctx, conversationID, userID)
}

// Kick removes someone else. Only the owner may do that.
func (s *ConversationDirectory) Kick(ctx context.Context, actorID, conversationID, userID uuid.UUID) (*domain.Removal, error) {
	if actorID == userID {
		return s.Leave(ctx, actorID, conversationID)
	}
	if _, _, err := s.resolver.AuthorizeConversation(ctx, actorID, conversationID, access.CapManageMembers); err != nil {
		return nil, err
	}
	return s.removeAndSettle(ctx, conversationID, userID)
}

func (s *ConversationDirectory) removeAndSettle(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Removal, error) {
	removal, err := s.RemoveParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	room := removal.Conversation.Scope().Room()
	s.publisher.UnsubscribeUser(userID, room)
	s.publisher.Publish(EventConversationUpdated, removal.Conversation, Target{
		Rooms: []string{room},
		Users: []uuid.UUID{userID},
	})

	if removal.ShouldClose {
		if err := s.settleRetired(ctx, removal.Conversation, true); err != nil {
			return nil, err
		}
	}
	return removal, nil
}

func (s *ConversationDirectory) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.PrivateConversation, error) {
	convs, err := s.conversations.ListByUser(ctx, userID)
	if convs == nil {
		convs = []domain.PrivateConversation{}
	}
	return convs, err
}
