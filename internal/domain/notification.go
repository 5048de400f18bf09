package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationChannel      NotificationKind = "channel"
	NotificationConversation NotificationKind = "conversation"
	NotificationMention      NotificationKind = "mention"
)

// BaseNotificationKind is the non-mention kind recorded for a message in scope.
func BaseNotificationKind(scope Scope) NotificationKind {
	if scope.Kind == ScopeConversation {
		return NotificationConversation
	}
	return NotificationChannel
}

type Notification struct {
	ID          uuid.UUID        `json:"id"`
	UserID      uuid.UUID        `json:"user_id"`
	Kind        NotificationKind `json:"kind"`
	ScopeKind   ScopeKind        `json:"scope_kind"`
	ReferenceID uuid.UUID        `json:"reference_id"`
	MessageID   uuid.UUID        `json:"message_id"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (n *Notification) Scope() Scope {
	return Scope{Kind: n.ScopeKind, ID: n.ReferenceID}
}
