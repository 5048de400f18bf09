package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
	"golang.org/x/sync/errgroup"
)

// MessageWriter stores the messages the dispatcher fans out.
type MessageWriter interface {
	Create(ctx context.Context, msg *domain.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ScopeLocker serializes work on one scope.
type ScopeLocker interface {
	LockScope(scope domain.Scope) (unlock func())
}

// AudienceResolver finds who a message in scope is for.
type AudienceResolver interface {
	Readers(ctx context.Context, scope domain.Scope) (*access.Audience, error)
}

// MessageEvent is the payload of new-message and message-edited.
type MessageEvent struct {
	Message           *domain.Message `json:"message"`
	SenderUsername    string          `json:"sender_username,omitempty"`
	SenderDisplayName string          `json:"sender_display_name,omitempty"`
}

type MentionEvent struct {
	Message      *domain.Message      `json:"message"`
	Notification *domain.Notification `json:"notification"`
}

type NotificationEvent struct {
	Notifications []domain.Notification `json:"notifications"`
}

type MessageDeletedEvent struct {
	Scope     domain.Scope `json:"scope"`
	MessageID uuid.UUID    `json:"message_id"`
}

type DispatchResult struct {
	Recipients    []uuid.UUID
	Counted       []uuid.UUID
	Notifications []domain.Notification
}

// Dispatcher stores a message and fans it out to its audience. Bookkeeping
// for every recipient commits in one transaction, and the message is kept
// only if it does. Live delivery follows and is best effort. Pushes for one
// scope leave in message id order.
type Dispatcher struct {
	audience      AudienceResolver
	users         repository.UserRepository
	store         repository.ReadStateStore
	ledger        *UnreadLedger
	notifications *NotificationStore
	publisher     Publisher
	locks         scopeLocks
	now           func() time.Time
}

func NewDispatcher(
	audience AudienceResolver,
	users repository.UserRepository,
	store repository.ReadStateStore,
	ledger *UnreadLedger,
	notifications *NotificationStore,
) *Dispatcher {
	return &Dispatcher{
		audience:      audience,
		users:         users,
		store:         store,
		ledger:        ledger,
		notifications: notifications,
		publisher:     nopPublisher{},
		now:           time.Now,
	}
}

// SetPublisher sets the live delivery target (optional dependency).
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = publisherOrNop(p)
}

// LockScope holds the scope's lock until unlock is called. Sends hold it
// from id assignment to the live push; channel and conversation teardown
// hold it while purging.
func (d *Dispatcher) LockScope(scope domain.Scope) (unlock func()) {
	return d.locks.lock(scope)
}

// Dispatch gives msg its id, stores it through messages, records unread
// state and notifications and pushes it to live connections. Everything
// happens under the scope lock, so ids, stored order and delivered order of
// one scope agree. The message is written inside the bookkeeping
// transaction and removed again if that transaction does not commit. An
// error means nothing was kept or pushed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *domain.Message, messages MessageWriter) (*DispatchResult, error) {
	unlock := d.locks.lock(msg.Scope)
	defer unlock()

	var (
		audience *access.Audience
		sender   *domain.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		audience, err = d.audience.Readers(gctx, msg.Scope)
		return err
	})
	g.Go(func() error {
		var err error
		sender, err = d.users.GetByID(gctx, msg.SenderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving recipients: %w", err)
	}

	workspaceID := msg.WorkspaceID
	if workspaceID == nil {
		workspaceID = audience.WorkspaceID
	}

	msg.ID = domain.NewMessageID()
	msg.CreatedAt = d.now()

	stored := false
	result := &DispatchResult{Recipients: audience.Readers}
	err := d.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		counted, err := d.ledger.increment(ctx, tx, msg.Scope, workspaceID, msg.SenderID, audience.Readers, msg.ID)
		if err != nil {
			return err
		}

		var created []domain.Notification
		countedSet := make(map[uuid.UUID]struct{}, len(counted))
		for _, readerID := range counted {
			countedSet[readerID] = struct{}{}
			n, err := d.notifications.create(ctx, tx, readerID, domain.BaseNotificationKind(msg.Scope), msg.Scope, msg.ID)
			if errors.Is(err, ErrDuplicateNotification) {
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, *n)
		}

		for _, userID := range sortedUnique(msg.Mentions) {
			if _, ok := countedSet[userID]; !ok {
				continue
			}
			n, err := d.notifications.create(ctx, tx, userID, domain.NotificationMention, msg.Scope, msg.ID)
			if errors.Is(err, ErrDuplicateNotification) {
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, *n)
		}

		if err := messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("creating message: %w", err)
		}
		stored = true

		result.Counted = counted
		result.Notifications = created
		return nil
	})
	if err != nil {
		if stored {
			// Commit nije prosao, poruka ne smije ostati
			if delErr := messages.Delete(context.WithoutCancel(ctx), msg.ID); delErr != nil {
				log.Error().Err(delErr).Str("message_id", msg.ID.String()).Msg("removing undelivered message failed")
			}
		}
		log.Error().Err(err).
			Str("message_id", msg.ID.String()).
			Str("scope", msg.Scope.String()).
			Msg("fan-out bookkeeping failed")
		return nil, fmt.Errorf("recording delivery: %w", err)
	}

	d.push(msg, sender, audience, result)
	return result, nil
}

func (d *Dispatcher) push(msg *domain.Message, sender *domain.User, audience *access.Audience, result *DispatchResult) {
	event := MessageEvent{Message: msg}
	if sender != nil {
		event.SenderUsername = sender.Username
		event.SenderDisplayName = sender.DisplayName
	}
	users := append([]uuid.UUID{msg.SenderID}, audience.Readers...)
	d.publisher.Publish(EventNewMessage, event, Target{
		Rooms: []string{msg.Scope.Room()},
		Users: users,
	})

	perUser := make(map[uuid.UUID][]domain.Notification)
	var order []uuid.UUID
	for i := range result.Notifications {
		n := result.Notifications[i]
		if n.Kind == domain.NotificationMention {
			d.publisher.Publish(EventNewMention, MentionEvent{Message: msg, Notification: &n}, Target{
				Users: []uuid.UUID{n.UserID},
			})
		}
		if _, ok := perUser[n.UserID]; !ok {
			order = append(order, n.UserID)
		}
		perUser[n.UserID] = append(perUser[n.UserID], n)
	}
	for _, userID := range order {
		d.publisher.Publish(EventNotificationCreated, NotificationEvent{Notifications: perUser[userID]}, Target{
			Users: []uuid.UUID{userID},
		})
	}
}

// NotifyEdited pushes message-edited to the scope room.
func (d *Dispatcher) NotifyEdited(msg *domain.Message) {
	unlock := d.LockScope(msg.Scope)
	defer unlock()
	d.publisher.Publish(EventMessageEdited, MessageEvent{Message: msg}, Target{Rooms: []string{msg.Scope.Room()}})
}

// NotifyDeleted pushes message-deleted to the scope room.
func (d *Dispatcher) NotifyDeleted(scope domain.Scope, messageID uuid.UUID) {
	unlock := d.LockScope(scope)
	defer unlock()
	d.publisher.Publish(EventMessageDeleted, MessageDeletedEvent{Scope: scope, MessageID: messageID}, Target{Rooms: []string{scope.Room()}})
}

// scopeLocks hands out one mutex per scope and forgets it when unused.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[domain.Scope]*scopeLock
}

type scopeLock struct {
	sync.Mutex
	refs int
}

func (s *scopeLocks) LockScope(scope domain.Scope) (unlock func()) {
	return s.lock(scope)
}

func (s *scopeLocks) lock(scope domain.Scope) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[domain.Scope]*scopeLock)
	}
	l, ok := s.locks[scope]
	if !ok {
		l = &scopeLock{}
		s.locks[scope] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, scope)
		}
		s.mu.Unlock()
	}
}
