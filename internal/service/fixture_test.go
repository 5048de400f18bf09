package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
	"github.com/vedran77/pulse-relay/internal/repository/memory"
)

type published struct {
	event   LiveEvent
	payload any
	target  Target
}

// recordingPublisher stands in for the websocket registry.
type recordingPublisher struct {
	mu           sync.Mutex
	events       []published
	closedRooms  []string
	subscribed   map[string][]uuid.UUID
	unsubscribed map[string][]uuid.UUID
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		subscribed:   make(map[string][]uuid.UUID),
		unsubscribed: make(map[string][]uuid.UUID),
	}
}

func (p *recordingPublisher) Publish(event LiveEvent, payload any, target Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event: event, payload: payload, target: target})
}

func (p *recordingPublisher) SubscribeUser(userID uuid.UUID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribed[room] = append(p.subscribed[room], userID)
}

func (p *recordingPublisher) UnsubscribeUser(userID uuid.UUID, room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribed[room] = append(p.unsubscribed[room], userID)
}

func (p *recordingPublisher) CloseRoom(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closedRooms = append(p.closedRooms, room)
}

func (p *recordingPublisher) byEvent(event LiveEvent) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// failingStore refuses every write transaction.
type failingStore struct {
	repository.ReadStateStore
}

func (failingStore) WithinTx(context.Context, func(tx repository.ReadStateTx) error) error {
	return repository.ErrUnavailable
}

// failingPurger refuses to purge until fail is cleared.
type failingPurger struct {
	mu     sync.Mutex
	fail   bool
	next   ScopePurger
	purged []domain.Scope
}

func (p *failingPurger) PurgeScope(ctx context.Context, scope domain.Scope) error {
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return repository.ErrUnavailable
	}
	if err := p.next.PurgeScope(ctx, scope); err != nil {
		return err
	}
	p.mu.Lock()
	p.purged = append(p.purged, scope)
	p.mu.Unlock()
	return nil
}

func (p *failingPurger) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

type fixture struct {
	store         *memory.Store
	readState     repository.ReadStateStore
	messageRepo   repository.MessageRepository
	wrapPurger    func(ScopePurger) ScopePurger
	resolver      *access.Resolver
	ledger        *UnreadLedger
	notifications *NotificationStore
	dispatcher    *Dispatcher
	messages      *MessageService
	reads         *ReadService
	conversations *ConversationDirectory
	channels      *ChannelService
	workspaces    *WorkspaceService
	publisher     *recordingPublisher
	workspace     uuid.UUID
}

type fixtureOption func(*fixture)

func withReadState(store repository.ReadStateStore) fixtureOption {
	return func(f *fixture) { f.readState = store }
}

func withMessageRepo(wrap func(repository.MessageRepository) repository.MessageRepository) fixtureOption {
	return func(f *fixture) { f.messageRepo = wrap(f.messageRepo) }
}

// withPurger wraps the inline purger.
func withPurger(wrap func(ScopePurger) ScopePurger) fixtureOption {
	return func(f *fixture) { f.wrapPurger = wrap }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		store:       store,
		readState:   store.ReadState(),
		messageRepo: store.Messages(),
		publisher:   newRecordingPublisher(),
		workspace:   uuid.New(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.resolver = access.NewResolver(store.Channels(), store.Workspaces(), store.Conversations())
	f.ledger = NewUnreadLedger(f.readState)
	f.notifications = NewNotificationStore(f.readState, f.ledger, store.Messages())
	var purger ScopePurger = NewDirectPurger(store.Messages(), f.notifications)
	if f.wrapPurger != nil {
		purger = f.wrapPurger(purger)
	}

	f.dispatcher = NewDispatcher(f.resolver, store.Users(), f.readState, f.ledger, f.notifications)
	f.dispatcher.SetPublisher(f.publisher)
	f.messages = NewMessageService(f.messageRepo, f.resolver, f.dispatcher, f.ledger)
	f.messages.SetPublisher(f.publisher)
	f.reads = NewReadService(f.resolver, f.ledger, f.notifications)
	f.reads.SetPublisher(f.publisher)
	f.conversations = NewConversationDirectory(store.Conversations(), store.Users(), f.resolver, purger)
	f.conversations.SetPublisher(f.publisher)
	f.conversations.SetScopeLocker(f.dispatcher)
	f.channels = NewChannelService(store.Channels(), store.Workspaces(), f.resolver, purger)
	f.channels.SetPublisher(f.publisher)
	f.channels.SetScopeLocker(f.dispatcher)
	f.workspaces = NewWorkspaceService(store.Workspaces(), store.Users(), f.resolver)

	require.NoError(t, store.Workspaces().Create(context.Background(), &domain.Workspace{
		ID: f.workspace, Name: "Acme", Slug: "acme-" + f.workspace.String()[:8], CreatedAt: time.Now(),
	}))
	return f
}

// user creates a user who belongs to the fixture workspace with role.
func (f *fixture) user(t *testing.T, role string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, f.store.Users().Upsert(ctx, &domain.User{
		ID: id, Username: "u-" + id.String()[:8], DisplayName: "User", CreatedAt: time.Now(),
	}))
	if role != "" {
		require.NoError(t, f.store.Workspaces().AddMember(ctx, &domain.WorkspaceMember{
			WorkspaceID: f.workspace, UserID: id, Role: role, JoinedAt: time.Now(),
		}))
	}
	return id
}

func (f *fixture) publicChannel(t *testing.T, creator uuid.UUID) domain.Scope {
	t.Helper()
	ch, err := f.channels.Create(context.Background(), creator, f.workspace, CreateChannelInput{Name: "general-" + uuid.NewString()[:6]})
	require.NoError(t, err)
	return ch.Scope()
}

func (f *fixture) send(t *testing.T, sender uuid.UUID, scope domain.Scope, mentions ...uuid.UUID) *domain.Message {
	t.Helper()
	msg, err := f.messages.Send(context.Background(), sender, scope, SendMessageInput{Content: "hello", Mentions: mentions})
	require.NoError(t, err)
	return msg
}

func (f *fixture) count(t *testing.T, reader uuid.UUID, scope domain.Scope) int {
	t.Helper()
	n, err := f.ledger.Count(context.Background(), reader, scope)
	require.NoError(t, err)
	return n
}

func (f *fixture) unreadBase(t *testing.T, userID uuid.UUID, scope domain.Scope) int {
	t.Helper()
	list, err := f.notifications.List(context.Background(), userID, true, 100)
	require.NoError(t, err)
	n := 0
	for _, notif := range list {
		if notif.Scope() == scope && notif.Kind == domain.BaseNotificationKind(scope) {
			n++
		}
	}
	return n
}
