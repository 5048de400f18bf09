package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository"
)

func TestCreateReusesDirectConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")

	conv, created, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, bob, alice}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, conv.Participants, 2)
	assert.False(t, conv.IsGroup)
	assert.Equal(t, alice, conv.OwnerID)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, f.publisher.subscribed[conv.Scope().Room()])

	again, created, err := f.conversations.Create(ctx, bob, []uuid.UUID{alice}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}

func TestCreateValidatesParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")

	_, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{alice}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParticipants)

	_, _, err = f.conversations.Create(ctx, alice, []uuid.UUID{uuid.New()}, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestConversationMessagesCountForParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob}, nil)
	require.NoError(t, err)

	f.send(t, alice, conv.Scope())
	assert.Equal(t, 1, f.count(t, bob, conv.Scope()))
	assert.Equal(t, 0, f.count(t, carol, conv.Scope()))

	list, err := f.reads.Notifications(ctx, bob, true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationConversation, list[0].Kind)

	_, err = f.messages.Send(ctx, carol, conv.Scope(), SendMessageInput{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddParticipantMakesGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob}, nil)
	require.NoError(t, err)

	// any participant may invite
	grown, err := f.conversations.AddParticipant(ctx, bob, conv.ID, carol)
	require.NoError(t, err)
	assert.True(t, grown.IsGroup)
	assert.Len(t, grown.Participants, 3)

	_, err = f.conversations.AddParticipant(ctx, bob, conv.ID, carol)
	assert.ErrorIs(t, err, domain.ErrAlreadyParticipant)

	// only the owner kicks
	_, err = f.conversations.Kick(ctx, bob, conv.ID, carol)
	assert.ErrorIs(t, err, ErrForbidden)
	removal, err := f.conversations.Kick(ctx, alice, conv.ID, carol)
	require.NoError(t, err)
	assert.False(t, removal.ShouldClose)
}

func TestLeavingLastButOneClosesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol}, nil)
	require.NoError(t, err)
	f.send(t, alice, conv.Scope())

	removal, err := f.conversations.Leave(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.False(t, removal.ShouldClose)
	require.NotNil(t, removal.NewOwner)
	assert.Equal(t, bob, *removal.NewOwner)
	assert.Contains(t, f.publisher.unsubscribed[conv.Scope().Room()], alice)

	removal, err = f.conversations.Leave(ctx, carol, conv.ID)
	require.NoError(t, err)
	assert.True(t, removal.ShouldClose)

	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.Retired())
	assert.Contains(t, f.publisher.closedRooms, conv.Scope().Room())
	assert.Len(t, f.publisher.byEvent(EventConversationClosed), 1)

	msgs, err := f.store.Messages().ListByScope(ctx, conv.Scope(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, f.count(t, bob, conv.Scope()))

	// closed conversations stay readable but take no new messages
	_, err = f.conversations.Get(ctx, bob, conv.ID)
	require.NoError(t, err)
	_, err = f.messages.Send(ctx, bob, conv.Scope(), SendMessageInput{Content: "anyone?"})
	assert.ErrorIs(t, err, domain.ErrConversationRetired)
}

func TestRetireNeedsAcknowledgement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.conversations.Retire(ctx, conv.ID, false), ErrUnacknowledgedClose)
	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, stored.Retired())

	require.NoError(t, f.conversations.Retire(ctx, conv.ID, true))
	require.NoError(t, f.conversations.Retire(ctx, conv.ID, true))
	assert.Len(t, f.publisher.byEvent(EventConversationClosed), 1)
}

func TestCloseIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.conversations.Close(ctx, bob, conv.ID, true), ErrForbidden)
	assert.ErrorIs(t, f.conversations.Close(ctx, alice, conv.ID, false), ErrUnacknowledgedClose)

	require.NoError(t, f.conversations.Close(ctx, alice, conv.ID, true))
	require.NoError(t, f.conversations.Close(ctx, alice, conv.ID, true))
	assert.Len(t, f.publisher.byEvent(EventConversationClosed), 1)
	assert.Contains(t, f.publisher.closedRooms, conv.Scope().Room())
}

func TestGroupShrunkToPairKeepsDirectConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	direct, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob}, nil)
	require.NoError(t, err)
	group, created, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol}, nil)
	require.NoError(t, err)
	require.True(t, created)

	removal, err := f.conversations.Leave(ctx, carol, group.ID)
	require.NoError(t, err)
	assert.False(t, removal.ShouldClose)
	assert.Len(t, removal.Conversation.Participants, 2)

	found, err := f.conversations.Find1to1(ctx, bob, alice)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, direct.ID, found.ID)

	again, created, err := f.conversations.Create(ctx, bob, []uuid.UUID{alice}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, direct.ID, again.ID)
}

func TestConcurrentLeavesAreAllKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")
	dave := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol, dave}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []uuid.UUID{bob, carol} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.conversations.Leave(ctx, userID, conv.ID)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, dave}, stored.ParticipantIDs())
	assert.False(t, stored.Retired())
}

func TestConcurrentLeavesCloseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	removals := make([]*domain.Removal, 2)
	errs := make([]error, 2)
	for i, userID := range []uuid.UUID{bob, carol} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removals[i], errs[i] = f.conversations.Leave(ctx, userID, conv.ID)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.NotEqual(t, removals[0].ShouldClose, removals[1].ShouldClose, "exactly one leave closes")
	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.Retired())
	assert.Len(t, f.publisher.byEvent(EventConversationClosed), 1)
}

func TestConcurrentAddAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")
	carol := f.user(t, "")
	dave := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob, carol}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var addErr, leaveErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, addErr = f.conversations.AddParticipant(ctx, alice, conv.ID, dave)
	}()
	go func() {
		defer wg.Done()
		_, leaveErr = f.conversations.Leave(ctx, carol, conv.ID)
	}()
	wg.Wait()
	require.NoError(t, addErr)
	require.NoError(t, leaveErr)

	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob, dave}, stored.ParticipantIDs())
}

func TestFailedPurgeIsRetriedByClose(t *testing.T) {
	purger := &failingPurger{fail: true}
	f := newFixture(t, withPurger(func(next ScopePurger) ScopePurger {
		purger.next = next
		return purger
	}))
	ctx := context.Background()
	alice := f.user(t, "")
	bob := f.user(t, "")

	conv, _, err := f.conversations.Create(ctx, alice, []uuid.UUID{bob}, nil)
	require.NoError(t, err)
	f.send(t, alice, conv.Scope())

	err = f.conversations.Close(ctx, alice, conv.ID, true)
	require.ErrorIs(t, err, repository.ErrUnavailable)

	stored, err := f.store.Conversations().GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored.Retired())
	msgs, err := f.store.Messages().ListByScope(ctx, conv.Scope(), nil, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	purger.setFail(false)
	require.NoError(t, f.conversations.Close(ctx, alice, conv.ID, true))

	msgs, err = f.store.Messages().ListByScope(ctx, conv.Scope(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, f.count(t, bob, conv.Scope()))
	assert.Equal(t, []domain.Scope{conv.Scope()}, purger.purged)
	assert.Len(t, f.publisher.byEvent(EventConversationClosed), 1)
}
