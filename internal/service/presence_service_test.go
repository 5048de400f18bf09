package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	online   map[uuid.UUID]bool
	lastSeen map[uuid.UUID]time.Time
}

func (r *fakeReader) IsOnline(_ context.Context, userID uuid.UUID) (bool, error) {
	return r.online[userID], nil
}

func (r *fakeReader) LastSeen(_ context.Context, userID uuid.UUID) (*time.Time, error) {
	at, ok := r.lastSeen[userID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (r *fakeReader) Online(context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, ok := range r.online {
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestContactsShareWorkspaceOrConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	carol := f.user(t, "")
	dave := f.user(t, "")
	eve := f.user(t, "")

	_, _, err := f.conversations.Create(ctx, carol, []uuid.UUID{alice}, nil)
	require.NoError(t, err)
	closed, _, err := f.conversations.Create(ctx, dave, []uuid.UUID{alice}, nil)
	require.NoError(t, err)
	require.NoError(t, f.conversations.Retire(ctx, closed.ID, true))

	presence := NewPresenceService(f.store.Workspaces(), f.store.Conversations())
	contacts, err := presence.Contacts(ctx, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{bob, carol}, contacts)

	contacts, err = presence.Contacts(ctx, eve)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestPresenceStatusIsLimitedToContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	stranger := f.user(t, "")
	seen := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	presence := NewPresenceService(f.store.Workspaces(), f.store.Conversations())
	_, err := presence.Status(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrTransientStorage)

	presence.SetReader(&fakeReader{
		online:   map[uuid.UUID]bool{alice: true},
		lastSeen: map[uuid.UUID]time.Time{bob: seen},
	})

	status, err := presence.Status(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, status.Online)
	require.NotNil(t, status.LastSeen)
	assert.True(t, seen.Equal(*status.LastSeen))

	status, err = presence.Status(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, status.Online)
	assert.Nil(t, status.LastSeen)

	_, err = presence.Status(ctx, stranger, alice)
	assert.ErrorIs(t, err, ErrNotFound)

	online, err := presence.OnlineContacts(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, online)

	online, err = presence.OnlineContacts(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, online)
}
