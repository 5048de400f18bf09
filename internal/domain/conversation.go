package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// PrivateConversation is a 1:1 or group conversation outside of channels.
type PrivateConversation struct {
	ID           uuid.UUID     `json:"id"`
	Title        *string       `json:"title,omitempty"`
	Participants []Participant `json:"participants"`
	OwnerID      uuid.UUID     `json:"owner_id"`
	IsGroup      bool          `json:"is_group"`
	// Direct marks a conversation created between exactly two users that has
	// never grown since. Only direct conversations answer find1to1.
	Direct       bool          `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	RetiredAt    *time.Time    `json:"retired_at,omitempty"`
}

// NewConversation builds a conversation owned by creatorID. participantIDs are
// deduplicated and the creator is always included.
func NewConversation(creatorID uuid.UUID, participantIDs []uuid.UUID, now time.Time) (*PrivateConversation, error) {
	ids := UniqueParticipants(creatorID, participantIDs)
	if len(ids) < 2 {
		return nil, ErrInvalidParticipants
	}

	conv := &PrivateConversation{
		ID:        uuid.New(),
		OwnerID:   creatorID,
		CreatedAt: now,
	}
	for _, id := range ids {
		conv.Participants = append(conv.Participants, Participant{UserID: id, JoinedAt: now})
	}
	conv.IsGroup = len(conv.Participants) > 2
	conv.Direct = !conv.IsGroup
	return conv, nil
}

// UniqueParticipants returns creatorID followed by the distinct non-nil ids
// of others, in first-seen order.
func UniqueParticipants(creatorID uuid.UUID, others []uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{creatorID: {}}
	ids := []uuid.UUID{creatorID}
	for _, id := range others {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (c *PrivateConversation) Scope() Scope {
	return ConversationScope(c.ID)
}

func (c *PrivateConversation) Retired() bool {
	return c.RetiredAt != nil
}

func (c *PrivateConversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *PrivateConversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// DirectKey identifies a direct conversation by its two users. It is only
// used to keep 1:1 conversations unique; a group that shrank to two users
// has none.
func (c *PrivateConversation) DirectKey() *string {
	if !c.Direct || c.Retired() || len(c.Participants) != 2 {
		return nil
	}
	key := DirectKey(c.Participants[0].UserID, c.Participants[1].UserID)
	return &key
}

func DirectKey(a, b uuid.UUID) string {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

func (c *PrivateConversation) AddParticipant(userID uuid.UUID, now time.Time) error {
	if c.Retired() {
		return ErrConversationRetired
	}
	if c.HasParticipant(userID) {
		return ErrAlreadyParticipant
	}
	c.Participants = append(c.Participants, Participant{UserID: userID, JoinedAt: now})
	c.IsGroup = len(c.Participants) > 2
	c.Direct = false
	return nil
}

// Removal describes the outcome of removing a participant.
type Removal struct {
	Conversation *PrivateConversation
	Removed      uuid.UUID
	// NewOwner is set when the removed user owned the conversation and
	// ownership moved to someone else.
	NewOwner *uuid.UUID
	// ShouldClose is set when fewer than two participants remain. Tearing the
	// conversation down is the caller's job.
	ShouldClose bool
}

func (c *PrivateConversation) RemoveParticipant(userID uuid.UUID) (*Removal, error) {
	if c.Retired() {
		return nil, ErrConversationRetired
	}

	idx := -1
	for i, p := range c.Participants {
		if p.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotParticipant
	}

	c.Participants = append(c.Participants[:idx:idx], c.Participants[idx+1:]...)
	c.IsGroup = len(c.Participants) > 2

	removal := &Removal{Conversation: c, Removed: userID}
	if c.OwnerID == userID && len(c.Participants) > 0 {
		next := c.earliestParticipant()
		c.OwnerID = next
		removal.NewOwner = &next
	}
	removal.ShouldClose = len(c.Participants) < 2
	return removal, nil
}

// earliestParticipant returns the participant with the earliest JoinedAt.
// Participants that joined at the same instant keep their list order.
func (c *PrivateConversation) earliestParticipant() uuid.UUID {
	ps := make([]Participant, len(c.Participants))
	copy(ps, c.Participants)
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})
	return ps[0].UserID
}

func (c *PrivateConversation) Retire(now time.Time) {
	if c.RetiredAt == nil {
		c.RetiredAt = &now
	}
}
