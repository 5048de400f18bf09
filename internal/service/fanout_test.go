package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
	"github.com/vedran77/pulse-relay/internal/repository/memory"
	"golang.org/x/sync/errgroup"
)

// gatedMessages holds the first Create until release is closed.
type gatedMessages struct {
	repository.MessageRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedMessages) Create(ctx context.Context, msg *domain.Message) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MessageRepository.Create(ctx, msg)
}

func TestDispatchTargets(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	carol := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	msg := f.send(t, alice, scope, carol)

	news := f.publisher.byEvent(EventNewMessage)
	require.Len(t, news, 1)
	assert.Equal(t, []string{scope.Room()}, news[0].target.Rooms)
	assert.Subset(t, news[0].target.Users, []uuid.UUID{alice, bob, carol})
	event, ok := news[0].payload.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, msg.ID, event.Message.ID)
	assert.NotEmpty(t, event.SenderUsername)

	mentions := f.publisher.byEvent(EventNewMention)
	require.Len(t, mentions, 1)
	assert.Equal(t, []uuid.UUID{carol}, mentions[0].target.Users)

	created := f.publisher.byEvent(EventNotificationCreated)
	require.Len(t, created, 2)
	for _, e := range created {
		payload := e.payload.(NotificationEvent)
		require.Len(t, e.target.Users, 1)
		for _, n := range payload.Notifications {
			assert.Equal(t, e.target.Users[0], n.UserID)
		}
	}
}

func TestDispatchToPrivateChannelSkipsNonMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	outsider := f.user(t, "member")

	ch, err := f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "secret", Visibility: "private"})
	require.NoError(t, err)
	require.NoError(t, f.channels.AddMember(ctx, alice, ch.ID, bob))

	f.send(t, alice, ch.Scope())
	assert.Equal(t, 1, f.count(t, bob, ch.Scope()))
	assert.Equal(t, 0, f.count(t, outsider, ch.Scope()))

	_, err = f.messages.Send(ctx, outsider, ch.Scope(), SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedBookkeepingRemovesMessage(t *testing.T) {
	broken := newFixture(t, withReadState(failingStore{ReadStateStore: memory.NewReadStateStore()}))
	alice := broken.user(t, "member")
	broken.user(t, "member")
	scope := broken.publicChannel(t, alice)

	_, err := broken.messages.Send(context.Background(), alice, scope, SendMessageInput{Content: "lost"})
	require.ErrorIs(t, err, repository.ErrUnavailable)

	msgs, err := broken.store.Messages().ListByScope(context.Background(), scope, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, broken.publisher.byEvent(EventNewMessage))
}

func TestSendsInOneScopeKeepIDOrder(t *testing.T) {
	gate := &gatedMessages{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, withMessageRepo(func(next repository.MessageRepository) repository.MessageRepository {
		gate.MessageRepository = next
		return gate
	}))
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	var first, second *domain.Message
	var g errgroup.Group
	g.Go(func() error {
		var err error
		first, err = f.messages.Send(ctx, alice, scope, SendMessageInput{Content: "first"})
		return err
	})
	<-gate.entered
	g.Go(func() error {
		var err error
		second, err = f.messages.Send(ctx, bob, scope, SendMessageInput{Content: "second"})
		return err
	})
	// second waits on the scope lock while first is held up
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.publisher.byEvent(EventNewMessage))
	close(gate.release)
	require.NoError(t, g.Wait())

	assert.Negative(t, domain.CompareMessageIDs(first.ID, second.ID))
	news := f.publisher.byEvent(EventNewMessage)
	require.Len(t, news, 2)
	assert.Equal(t, first.ID, news[0].payload.(MessageEvent).Message.ID)
	assert.Equal(t, second.ID, news[1].payload.(MessageEvent).Message.ID)

	stored, err := f.store.Messages().ListByScope(ctx, scope, nil, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, first.ID, stored[0].ID)
}

func TestSendWaitsForChannelDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	unlock := f.dispatcher.LockScope(scope)
	done := make(chan error, 1)
	go func() {
		_, err := f.messages.Send(ctx, alice, scope, SendMessageInput{Content: "racing"})
		done <- err
	}()
	require.NoError(t, f.store.Channels().Delete(ctx, scope.ID))
	unlock()

	assert.ErrorIs(t, <-done, ErrNotFound)
	msgs, err := f.store.Messages().ListByScope(ctx, scope, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeleteMessagePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)
	msg := f.send(t, bob, scope)

	// alice created the channel and administers it
	require.NoError(t, f.messages.Delete(ctx, alice, msg.ID))
	assert.ErrorIs(t, f.messages.Delete(ctx, alice, msg.ID), ErrNotFound)

	own := f.send(t, alice, scope)
	assert.ErrorIs(t, f.messages.Delete(ctx, bob, own.ID), ErrNotMessageOwner)

	deleted := f.publisher.byEvent(EventMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, msg.ID, deleted[0].payload.(MessageDeletedEvent).MessageID)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)
	msg := f.send(t, alice, scope)

	_, err := f.messages.Edit(ctx, bob, msg.ID, EditMessageInput{Content: "nope"})
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	edited, err := f.messages.Edit(ctx, alice, msg.ID, EditMessageInput{Content: "  fixed  "})
	require.NoError(t, err)
	assert.Equal(t, "fixed", *edited.Content)
	assert.Len(t, f.publisher.byEvent(EventMessageEdited), 1)

	_, err = f.messages.Edit(ctx, alice, msg.ID, EditMessageInput{Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListPagesOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, alice, scope).ID)
	}

	page, err := f.messages.List(ctx, alice, scope, nil, 3)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, ids[2:], []uuid.UUID{page.Messages[0].ID, page.Messages[1].ID, page.Messages[2].ID})

	older, err := f.messages.List(ctx, alice, scope, &page.Messages[0].ID, 3)
	require.NoError(t, err)
	assert.False(t, older.HasMore)
	require.Len(t, older.Messages, 2)
	assert.Equal(t, ids[0], older.Messages[0].ID)
}

func TestScopeLocksAreReleased(t *testing.T) {
	var locks scopeLocks
	scope := domain.ChannelScope(uuid.New())

	unlock := locks.lock(scope)
	assert.Len(t, locks.locks, 1)
	unlock()
	assert.Empty(t, locks.locks)
}
