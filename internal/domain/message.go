package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Message ids are UUIDv7, so byte order follows creation order within a process
// and across processes up to clock precision.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	Scope       Scope       `json:"scope"`
	WorkspaceID *uuid.UUID  `json:"workspace_id,omitempty"`
	SenderID    uuid.UUID   `json:"sender_id"`
	Content     *string     `json:"content,omitempty"`
	Type        string      `json:"type"`
	ParentID    *uuid.UUID  `json:"parent_id,omitempty"`
	Mentions    []uuid.UUID `json:"mentions,omitempty"`
	EditedAt    *time.Time  `json:"edited_at,omitempty"`
	DeletedAt   *time.Time  `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewMessageID returns a time-ordered message id.
func NewMessageID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// CompareMessageIDs orders two message ids by creation.
func CompareMessageIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
