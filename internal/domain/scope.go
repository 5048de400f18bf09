package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ScopeKind string

const (
	ScopeChannel      ScopeKind = "channel"
	ScopeConversation ScopeKind = "conversation"
)

func (k ScopeKind) Valid() bool {
	return k == ScopeChannel || k == ScopeConversation
}

// Scope addresses the unit unread counts and notifications are tracked against:
// a channel or a private conversation.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func ChannelScope(id uuid.UUID) Scope {
	return Scope{Kind: ScopeChannel, ID: id}
}

func ConversationScope(id uuid.UUID) Scope {
	return Scope{Kind: ScopeConversation, ID: id}
}

// Room is the live-delivery address of the scope.
func (s Scope) Room() string {
	return string(s.Kind) + ":" + s.ID.String()
}

func (s Scope) String() string {
	return s.Room()
}

// UserRoom is the personal room every authenticated connection joins.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ParseScope parses a kind/id pair as it appears in URLs.
func ParseScope(kind, id string) (Scope, error) {
	k := ScopeKind(strings.ToLower(kind))
	if !k.Valid() {
		return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope id: %w", err)
	}
	return Scope{Kind: k, ID: parsed}, nil
}

// ParseRoom is the inverse of Scope.Room.
func ParseRoom(room string) (Scope, error) {
	kind, id, ok := strings.Cut(room, ":")
	if !ok {
		return Scope{}, fmt.Errorf("malformed room %q", room)
	}
	return ParseScope(kind, id)
}
