package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/domain"
)

func TestUnreadCountFollowsReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	f.send(t, alice, scope)
	assert.Equal(t, 1, f.count(t, bob, scope))
	assert.Equal(t, 0, f.count(t, alice, scope), "the author never counts their own message")

	_, err := f.messages.List(ctx, bob, scope, nil, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, f.count(t, bob, scope))

	f.send(t, alice, scope)
	assert.Equal(t, 1, f.count(t, bob, scope))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	f.send(t, alice, scope)
	last := f.send(t, alice, scope)
	require.Equal(t, 2, f.count(t, bob, scope))

	first, err := f.reads.MarkRead(ctx, bob, scope, last.ID)
	require.NoError(t, err)
	second, err := f.reads.MarkRead(ctx, bob, scope, last.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, first.Count)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.LastReadMessageID, second.LastReadMessageID)
}

func TestMarkReadKeepsLaterMessagesUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	first := f.send(t, alice, scope)
	f.send(t, alice, scope)

	state, err := f.reads.MarkRead(ctx, bob, scope, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)

	// Reading an older message never moves the pointer back.
	older, err := f.reads.MarkRead(ctx, bob, scope, uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, older.LastReadMessageID)
	assert.Equal(t, first.ID, *older.LastReadMessageID)
	assert.Equal(t, 1, older.Count)
}

func TestOnNewMessageCountsOncePerMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := domain.ChannelScope(uuid.New())
	author, reader := uuid.New(), uuid.New()
	msgID := domain.NewMessageID()

	counted, err := f.ledger.OnNewMessage(ctx, scope, &f.workspace, author, []uuid.UUID{reader, author, reader}, msgID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{reader}, counted)

	counted, err = f.ledger.OnNewMessage(ctx, scope, &f.workspace, author, []uuid.UUID{reader}, msgID)
	require.NoError(t, err)
	assert.Empty(t, counted)
	assert.Equal(t, 1, f.count(t, reader, scope))
}

func TestUnreadSummaryByWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	general := f.publicChannel(t, alice)
	random := f.publicChannel(t, alice)

	f.send(t, alice, general)
	f.send(t, alice, general)
	f.send(t, alice, random)

	summary, err := f.reads.Unread(ctx, bob, &f.workspace)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Len(t, summary.Scopes, 2)

	outsider := f.user(t, "")
	_, err = f.reads.Unread(ctx, outsider, &f.workspace)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSortedUnique(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	assert.Equal(t, []uuid.UUID{a, b}, sortedUnique([]uuid.UUID{b, a, b}))
	assert.Empty(t, sortedUnique(nil))
}

func TestConcurrentCountingAndReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	ids := make([]uuid.UUID, 40)
	for i := range ids {
		ids[i] = domain.NewMessageID()
	}
	readUpTo := ids[19]

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.OnNewMessage(ctx, scope, &f.workspace, alice, []uuid.UUID{alice, bob}, id)
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.MarkRead(ctx, bob, scope, readUpTo)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// whatever the interleaving, only messages past the pointer stay unread
	assert.Equal(t, 20, f.count(t, bob, scope))
	assert.Equal(t, 0, f.count(t, alice, scope))

	state, err := f.ledger.MarkRead(ctx, bob, scope, ids[len(ids)-1])
	require.NoError(t, err)
	assert.Equal(t, 0, state.Count)
}
