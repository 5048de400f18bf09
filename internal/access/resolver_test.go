package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/domain"
	"github.com/vedran77/pulse-relay/internal/repository/memory"
)

type fixture struct {
	store     *memory.Store
	resolver  *Resolver
	workspace uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	return &fixture{
		store:     store,
		resolver:  NewResolver(store.Channels(), store.Workspaces(), store.Conversations()),
		workspace: uuid.New(),
	}
}

func (f *fixture) workspaceMember(t *testing.T, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.Workspaces().AddMember(context.Background(), &domain.WorkspaceMember{
		WorkspaceID: f.workspace, UserID: id, Role: role, JoinedAt: time.Now(),
	}))
	return id
}

func (f *fixture) channel(t *testing.T, visibility domain.Visibility) *domain.Channel {
	t.Helper()
	ch := &domain.Channel{
		ID: uuid.New(), WorkspaceID: f.workspace, Name: uuid.NewString(),
		Visibility: visibility, CreatedAt: time.Now(),
	}
	require.NoError(t, f.store.Channels().Create(context.Background(), ch))
	return ch
}

func (f *fixture) channelMember(t *testing.T, ch *domain.Channel, userID uuid.UUID, role string) {
	t.Helper()
	require.NoError(t, f.store.Channels().AddMember(context.Background(), &domain.ChannelMember{
		ChannelID: ch.ID, UserID: userID, Role: role, JoinedAt: time.Now(),
	}))
}

func TestModeratorCanDeleteButNotModify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.channel(t, domain.VisibilityPrivate)
	mod := f.workspaceMember(t, "member")
	f.channelMember(t, ch, mod, "moderator")

	_, _, err := f.resolver.AuthorizeChannel(ctx, mod, ch.ID, CapModifyChannel)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, role, err := f.resolver.AuthorizeChannel(ctx, mod, ch.ID, CapDeleteAnyMessage)
	require.NoError(t, err)
	assert.Equal(t, RoleModerator, role)
}

func TestPublicChannelImplicitMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.channel(t, domain.VisibilityPublic)
	user := f.workspaceMember(t, "member")

	_, role, err := f.resolver.AuthorizeChannel(ctx, user, ch.ID, CapSend)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	outsider := uuid.New()
	_, _, err = f.resolver.AuthorizeChannel(ctx, outsider, ch.ID, CapRead)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPrivateChannelHiddenFromNonMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := f.channel(t, domain.VisibilityPrivate)
	user := f.workspaceMember(t, "admin")

	_, _, err := f.resolver.AuthorizeChannel(ctx, user, ch.ID, CapRead)
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.workspaceMember(t, "member")
	b := f.workspaceMember(t, "member")
	c := f.workspaceMember(t, "member")

	public := f.channel(t, domain.VisibilityPublic)
	aud, err := f.resolver.Readers(ctx, public.Scope())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b, c}, aud.Readers)
	require.NotNil(t, aud.WorkspaceID)
	assert.Equal(t, f.workspace, *aud.WorkspaceID)

	private := f.channel(t, domain.VisibilityPrivate)
	f.channelMember(t, private, b, "admin")
	aud, err = f.resolver.Readers(ctx, private.Scope())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, aud.Readers)

	conv, err := domain.NewConversation(a, []uuid.UUID{c}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.Conversations().Create(ctx, conv))
	aud, err = f.resolver.Readers(ctx, conv.Scope())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, c}, aud.Readers)
	assert.Nil(t, aud.WorkspaceID)

	_, err = f.store.Conversations().Update(ctx, conv.ID, func(c *domain.PrivateConversation) error {
		c.Retire(time.Now())
		return nil
	})
	require.NoError(t, err)
	_, err = f.resolver.Readers(ctx, conv.Scope())
	assert.ErrorIs(t, err, domain.ErrConversationRetired)
}

func TestConversationAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	conv, err := domain.NewConversation(a, []uuid.UUID{b}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.Conversations().Create(ctx, conv))

	_, role, err := f.resolver.AuthorizeConversation(ctx, b, conv.ID, CapSend)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	_, _, err = f.resolver.AuthorizeConversation(ctx, b, conv.ID, CapManageMembers)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.resolver.AuthorizeConversation(ctx, uuid.New(), conv.ID, CapRead)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
