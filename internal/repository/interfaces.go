package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type UserRepository interface {
	// Upsert stores the user or refreshes the names of an existing one.
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type WorkspaceRepository interface {
	Create(ctx context.Context, workspace *domain.Workspace) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Workspace, error)
	Update(ctx context.Context, workspace *domain.Workspace) error
	AddMember(ctx context.Context, member *domain.WorkspaceMember) error
	RemoveMember(ctx context.Context, workspaceID, userID uuid.UUID) error
	GetMember(ctx context.Context, workspaceID, userID uuid.UUID) (*domain.WorkspaceMember, error)
	ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]domain.WorkspaceMember, error)
}

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]domain.Channel, error)
	Update(ctx context.Context, channel *domain.Channel) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, member *domain.ChannelMember) error
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error
	UpdateMemberRole(ctx context.Context, channelID, userID uuid.UUID, role string) error
	GetMember(ctx context.Context, channelID, userID uuid.UUID) (*domain.ChannelMember, error)
	ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error)
}

type ConversationRepository interface {
	// Create fails with ErrConflict when a 1:1 conversation with the same
	// direct key already exists.
	Create(ctx context.Context, conv *domain.PrivateConversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PrivateConversation, error)
	GetByDirectKey(ctx context.Context, key string) (*domain.PrivateConversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.PrivateConversation, error)
	// Update loads the conversation, applies fn and stores the result, with no
	// other Update of the same conversation in between. It returns (nil, nil)
	// without calling fn when the conversation does not exist, and stores
	// nothing when fn fails.
	Update(ctx context.Context, id uuid.UUID, fn func(conv *domain.PrivateConversation) error) (*domain.PrivateConversation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByScope returns up to limit messages older than before, oldest first.
	ListByScope(ctx context.Context, scope domain.Scope, before *uuid.UUID, limit int) ([]domain.Message, error)
	// LatestID returns the newest message id in scope, deleted messages included.
	LatestID(ctx context.Context, scope domain.Scope) (*uuid.UUID, error)
	Update(ctx context.Context, msg *domain.Message) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Delete removes the row entirely. Used to undo a send whose bookkeeping failed.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByScope(ctx context.Context, scope domain.Scope) error
}

// UnreadRepository keeps one ledger row per (reader, scope) plus the pending
// marks of messages the reader has not read yet. Count always equals the
// number of pending marks.
type UnreadRepository interface {
	Get(ctx context.Context, readerID uuid.UUID, scope domain.Scope) (*domain.UnreadState, error)
	// Mark records messageID as unread for readerID and bumps the count.
	// It reports false when the mark already existed or the message is at or
	// before the read pointer.
	Mark(ctx context.Context, readerID uuid.UUID, scope domain.Scope, workspaceID *uuid.UUID, messageID uuid.UUID) (bool, error)
	// ClearUpTo drops marks at or before upto, moves the read pointer forward
	// to upto and stamps the read time.
	ClearUpTo(ctx context.Context, readerID uuid.UUID, scope domain.Scope, upto uuid.UUID, at time.Time) (*domain.UnreadState, error)
	// ListUnread returns rows with a positive count, optionally limited to one workspace.
	ListUnread(ctx context.Context, readerID uuid.UUID, workspaceID *uuid.UUID) ([]domain.UnreadState, error)
	DeleteScope(ctx context.Context, scope domain.Scope) error
}

type NotificationRepository interface {
	// Create reports false when (user, message, kind) is already recorded.
	Create(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	// MarkReadUpTo marks every notification of userID in scope whose message
	// is at or before upto as read and returns how many changed.
	MarkReadUpTo(ctx context.Context, userID uuid.UUID, scope domain.Scope, upto uuid.UUID) (int, error)
	DeleteByScope(ctx context.Context, scope domain.Scope) error
}

// ReadStateTx groups the repositories that must change together.
type ReadStateTx interface {
	Unread() UnreadRepository
	Notifications() NotificationRepository
}

// ReadStateStore runs read-state work atomically. If fn returns an error
// nothing it did is kept.
type ReadStateStore interface {
	WithinTx(ctx context.Context, fn func(tx ReadStateTx) error) error
	// Read runs fn without write guarantees.
	Read(ctx context.Context, fn func(tx ReadStateTx) error) error
}
