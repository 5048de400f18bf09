package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeChannelJoin  = "channel.join"
	EventTypeChannelLeave = "channel.leave"
	EventTypeTypingStart  = "typing.start"
	EventTypeTypingStop   = "typing.stop"
	EventTypePing         = "ping"
)

// Event types - Server → Client. Domain events (new-message, all-read, ...)
// carry the service.LiveEvent name as their type.
const (
	EventTypeTyping   = "typing"
	EventTypePresence = "presence"
	EventTypePong     = "pong"
	EventTypeError    = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type RoomPayload struct {
	Room string `json:"room"`
}

// --- Server → Client payloads ---

type TypingPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

type PresencePayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	Status   string     `json:"status"` // "online" | "offline"
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType, room string, payload any) (*Event, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Event{
		Type:      eventType,
		Room:      room,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

// encodeEvent builds the wire frame once so it can be shared by every
// connection it is delivered to.
func encodeEvent(eventType, room string, payload any) ([]byte, error) {
	evt, err := NewEvent(eventType, room, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}
