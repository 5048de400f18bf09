package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// NotificationStore records per-user notifications and keeps them in step
// with the unread ledger: a base notification exists exactly when its message
// was counted, and reading either one reads the other.
type NotificationStore struct {
	store    repository.ReadStateStore
	ledger   *UnreadLedger
	messages repository.MessageRepository
	now      func() time.Time
}

func NewNotificationStore(store repository.ReadStateStore, ledger *UnreadLedger, messages repository.MessageRepository) *NotificationStore {
	return &NotificationStore{
		store:    store,
		ledger:   ledger,
		messages: messages,
		now:      time.Now,
	}
}

// Record stores a notification of kind for userID. A mention also records
// the base notification and unread mark of the message. Messages the user
// already read are skipped and (nil, nil) is returned.
func (s *NotificationStore) Record(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, scope domain.Scope, messageID uuid.UUID) (*domain.Notification, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message: %w", err)
	}
	if msg == nil || msg.Scope != scope {
		return nil, ErrMessageNotFound
	}

	var n *domain.Notification
	err = s.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		var err error
		n, err = s.record(ctx, tx, userID, kind, scope, msg.WorkspaceID, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationStore) record(ctx context.Context, tx repository.ReadStateTx, userID uuid.UUID, kind domain.NotificationKind, scope domain.Scope, workspaceID *uuid.UUID, messageID uuid.UUID) (*domain.Notification, error) {
	state, err := tx.Unread().Get(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	if state != nil && state.HasRead(messageID) {
		return nil, nil
	}

	base := domain.BaseNotificationKind(scope)
	switch kind {
	case base:
	case domain.NotificationMention:
		if _, err := s.create(ctx, tx, userID, base, scope, messageID); err != nil && !errors.Is(err, ErrDuplicateNotification) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s notification in %s", ErrInvalidInput, kind, scope.Kind)
	}

	if _, err := tx.Unread().Mark(ctx, userID, scope, workspaceID, messageID); err != nil {
		return nil, fmt.Errorf("marking unread: %w", err)
	}
	return s.create(ctx, tx, userID, kind, scope, messageID)
}

func (s *NotificationStore) create(ctx context.Context, tx repository.ReadStateTx, userID uuid.UUID, kind domain.NotificationKind, scope domain.Scope, messageID uuid.UUID) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:          uuid.New(),
		UserID:      userID,
		Kind:        kind,
		ScopeKind:   scope.Kind,
		ReferenceID: scope.ID,
		MessageID:   messageID,
		CreatedAt:   s.now(),
	}
	created, err := tx.Notifications().Create(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	if !created {
		return nil, ErrDuplicateNotification
	}
	return n, nil
}

// MarkRead reads one notification and everything in its scope up to its
// message, in one transaction.
func (s *NotificationStore) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) (*domain.Notification, *domain.UnreadState, error) {
	var (
		n     *domain.Notification
		state *domain.UnreadState
	)
	err := s.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		var err error
		n, err = tx.Notifications().GetByID(ctx, notificationID)
		if err != nil {
			return err
		}
		if n == nil || n.UserID != userID {
			return ErrNotFoundOrForbidden
		}
		if err := tx.Notifications().MarkRead(ctx, n.ID); err != nil {
			return err
		}
		state, err = s.ledger.markRead(ctx, tx, userID, n.Scope(), n.MessageID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	n.Read = true
	return n, state, nil
}

// MarkAllRead reads every notification and resets the count of userID in
// scope. It is all or nothing.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID, scope domain.Scope) (*domain.UnreadState, error) {
	latest, err := s.messages.LatestID(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("finding latest message: %w", err)
	}
	if latest == nil {
		return &domain.UnreadState{ReaderID: userID, Scope: scope}, nil
	}
	return s.ledger.MarkRead(ctx, userID, scope, *latest)
}

// UnreadCount sums the ledger, for one scope or across all of them. It
// equals the number of unread base notifications.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID uuid.UUID, scope *domain.Scope) (int, error) {
	if scope != nil {
		return s.ledger.Count(ctx, userID, *scope)
	}
	states, err := s.ledger.ListScopesWithUnread(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, st := range states {
		total += st.Count
	}
	return total, nil
}

func (s *NotificationStore) List(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var list []domain.Notification
	err := s.store.Read(ctx, func(tx repository.ReadStateTx) error {
		var err error
		list, err = tx.Notifications().ListByUser(ctx, userID, onlyUnread, limit)
		return err
	})
	if list == nil {
		list = []domain.Notification{}
	}
	return list, err
}

// PurgeScope drops the ledger rows, marks and notifications of scope.
func (s *NotificationStore) PurgeScope(ctx context.Context, scope domain.Scope) error {
	return s.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		if err := tx.Unread().DeleteScope(ctx, scope); err != nil {
			return fmt.Errorf("purging unread state: %w", err)
		}
		if err := tx.Notifications().DeleteByScope(ctx, scope); err != nil {
			return fmt.Errorf("purging notifications: %w", err)
		}
		return nil
	})
}
