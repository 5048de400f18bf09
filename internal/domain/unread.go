package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnreadState is the ledger row for one (reader, scope) pair.
type UnreadState struct {
	ReaderID          uuid.UUID  `json:"reader_id"`
	Scope             Scope      `json:"scope"`
	WorkspaceID       *uuid.UUID `json:"workspace_id,omitempty"`
	Count             int        `json:"count"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
}

// HasRead reports whether messageID is at or before the read pointer.
func (s *UnreadState) HasRead(messageID uuid.UUID) bool {
	return s.LastReadMessageID != nil && CompareMessageIDs(messageID, *s.LastReadMessageID) <= 0
}
