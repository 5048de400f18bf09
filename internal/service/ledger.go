package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

// UnreadLedger keeps per-reader, per-scope unread counts and read pointers.
//
// A count is the number of pending marks the reader has in the scope, so an
// increment is applied at most once per (reader, message) and a mark-read
// racing with a new message never loses the new message's increment.
type UnreadLedger struct {
	store repository.ReadStateStore
	now   func() time.Time
}

func NewUnreadLedger(store repository.ReadStateStore) *UnreadLedger {
	return &UnreadLedger{store: store, now: time.Now}
}

// OnNewMessage counts messageID once for every recipient except the author
// and returns the readers whose count actually changed.
func (l *UnreadLedger) OnNewMessage(ctx context.Context, scope domain.Scope, workspaceID *uuid.UUID, authorID uuid.UUID, recipients []uuid.UUID, messageID uuid.UUID) ([]uuid.UUID, error) {
	var counted []uuid.UUID
	err := l.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		var err error
		counted, err = l.increment(ctx, tx, scope, workspaceID, authorID, recipients, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return counted, nil
}

// increment takes row locks in reader id order so concurrent fan-outs over
// overlapping audiences cannot deadlock.
func (l *UnreadLedger) increment(ctx context.Context, tx repository.ReadStateTx, scope domain.Scope, workspaceID *uuid.UUID, authorID uuid.UUID, recipients []uuid.UUID, messageID uuid.UUID) ([]uuid.UUID, error) {
	var counted []uuid.UUID
	for _, readerID := range sortedUnique(recipients) {
		if readerID == authorID {
			continue
		}
		ok, err := tx.Unread().Mark(ctx, readerID, scope, workspaceID, messageID)
		if err != nil {
			return nil, fmt.Errorf("counting message for %s: %w", readerID, err)
		}
		if ok {
			counted = append(counted, readerID)
		}
	}
	return counted, nil
}

// MarkRead moves the reader's pointer up to uptoMessageID, clears the count
// of everything at or before it and marks the matching notifications read.
// Calling it again with the same arguments changes nothing.
func (l *UnreadLedger) MarkRead(ctx context.Context, readerID uuid.UUID, scope domain.Scope, uptoMessageID uuid.UUID) (*domain.UnreadState, error) {
	var state *domain.UnreadState
	err := l.store.WithinTx(ctx, func(tx repository.ReadStateTx) error {
		var err error
		state, err = l.markRead(ctx, tx, readerID, scope, uptoMessageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (l *UnreadLedger) markRead(ctx context.Context, tx repository.ReadStateTx, readerID uuid.UUID, scope domain.Scope, upto uuid.UUID) (*domain.UnreadState, error) {
	state, err := tx.Unread().ClearUpTo(ctx, readerID, scope, upto, l.now())
	if err != nil {
		return nil, fmt.Errorf("clearing unread: %w", err)
	}
	if _, err := tx.Notifications().MarkReadUpTo(ctx, readerID, scope, upto); err != nil {
		return nil, fmt.Errorf("marking notifications read: %w", err)
	}
	return state, nil
}

func (l *UnreadLedger) Count(ctx context.Context, readerID uuid.UUID, scope domain.Scope) (int, error) {
	var count int
	err := l.store.Read(ctx, func(tx repository.ReadStateTx) error {
		st, err := tx.Unread().Get(ctx, readerID, scope)
		if err != nil || st == nil {
			return err
		}
		count = max(st.Count, 0)
		return nil
	})
	return count, err
}

// ListScopesWithUnread returns the reader's scopes with a positive count,
// limited to one workspace when workspaceID is set.
func (l *UnreadLedger) ListScopesWithUnread(ctx context.Context, readerID uuid.UUID, workspaceID *uuid.UUID) ([]domain.UnreadState, error) {
	var states []domain.UnreadState
	err := l.store.Read(ctx, func(tx repository.ReadStateTx) error {
		var err error
		states, err = tx.Unread().ListUnread(ctx, readerID, workspaceID)
		return err
	})
	if states == nil {
		states = []domain.UnreadState{}
	}
	return states, err
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out
}
