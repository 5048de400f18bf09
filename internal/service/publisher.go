package service

import "github.com/google/uuid"

// LiveEvent names a server-pushed event.
type LiveEvent string

const (
	EventNewMessage          LiveEvent = "new-message"
	EventNewMention          LiveEvent = "new-mention"
	EventMessageEdited       LiveEvent = "message-edited"
	EventMessageDeleted      LiveEvent = "message-deleted"
	EventNotificationCreated LiveEvent = "notification-created"
	EventAllRead             LiveEvent = "all-read"
	EventConversationUpdated LiveEvent = "conversation-updated"
	EventConversationClosed  LiveEvent = "conversation-closed"
	EventChannelDeleted      LiveEvent = "channel-deleted"
)

// Target addresses live connections: everyone in Rooms plus every
// connection of Users. A connection matched more than once gets one frame.
type Target struct {
	Rooms []string
	Users []uuid.UUID
}

// Publisher pushes events to live connections. Delivery is best effort and
// never reports an error to the caller.
type Publisher interface {
	Publish(event LiveEvent, payload any, target Target)
	// SubscribeUser puts every current connection of userID into room.
	SubscribeUser(userID uuid.UUID, room string)
	UnsubscribeUser(userID uuid.UUID, room string)
	// CloseRoom removes every connection from room.
	CloseRoom(room string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(LiveEvent, any, Target)    {}
func (nopPublisher) SubscribeUser(uuid.UUID, string)   {}
func (nopPublisher) UnsubscribeUser(uuid.UUID, string) {}
func (nopPublisher) CloseRoom(string)                  {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
