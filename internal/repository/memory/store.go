// Package memory keeps every repository in process memory. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/pulse-relay/internal/domain"
)

type memberKey struct {
	scopeID uuid.UUID
	userID  uuid.UUID
}

// Store owns the data of all repositories handed out by it.
type Store struct {
	mu               sync.RWMutex
	users            map[uuid.UUID]domain.User
	workspaces       map[uuid.UUID]domain.Workspace
	workspaceMembers map[memberKey]domain.WorkspaceMember
	channels         map[uuid.UUID]domain.Channel
	channelMembers   map[memberKey]domain.ChannelMember
	conversations    map[uuid.UUID]domain.PrivateConversation
	messages         map[uuid.UUID]domain.Message

	readState *ReadStateStore
}

func New() *Store {
	return &Store{
		users:            make(map[uuid.UUID]domain.User),
		workspaces:       make(map[uuid.UUID]domain.Workspace),
		workspaceMembers: make(map[memberKey]domain.WorkspaceMember),
		channels:         make(map[uuid.UUID]domain.Channel),
		channelMembers:   make(map[memberKey]domain.ChannelMember),
		conversations:    make(map[uuid.UUID]domain.PrivateConversation),
		messages:         make(map[uuid.UUID]domain.Message),
		readState:        NewReadStateStore(),
	}
}

func (s *Store) Users() *UserRepo                 { return &UserRepo{s: s} }
func (s *Store) Workspaces() *WorkspaceRepo       { return &WorkspaceRepo{s: s} }
func (s *Store) Channels() *ChannelRepo           { return &ChannelRepo{s: s} }
func (s *Store) Conversations() *ConversationRepo { return &ConversationRepo{s: s} }
func (s *Store) Messages() *MessageRepo           { return &MessageRepo{s: s} }
func (s *Store) ReadState() *ReadStateStore       { return s.readState }

func sortByJoined[T any](items []T, joined func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool { return joined(items[i]) < joined(items[j]) })
}
