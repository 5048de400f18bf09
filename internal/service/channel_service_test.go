package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/pulse-relay/internal/access"
	"github.com/vedran77/pulse-relay/internal/repository"
)

func TestChannelNamesAreUniquePerWorkspace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")

	_, err := f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "general"})
	require.NoError(t, err)
	_, err = f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "General"})
	assert.ErrorIs(t, err, ErrChannelNameTaken)

	outsider := f.user(t, "")
	_, err = f.channels.Create(ctx, outsider, f.workspace, CreateChannelInput{Name: "mine"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModeratorCannotModifyChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)

	require.NoError(t, f.channels.AddMember(ctx, bob, scope.ID, bob))
	require.NoError(t, f.channels.SetMemberRole(ctx, alice, scope.ID, bob, "moderator"))

	name := "renamed"
	_, err := f.channels.Update(ctx, bob, scope.ID, UpdateChannelInput{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, f.channels.SetMemberRole(ctx, alice, scope.ID, bob, "owner"), ErrInvalidInput)

	got, err := f.channels.GetByID(ctx, bob, scope.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleModerator.String(), got.Role)
	assert.Contains(t, got.Capabilities, access.CapManageMembers)
	assert.NotContains(t, got.Capabilities, access.CapModifyChannel)
}

func TestPrivateChannelsAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")

	_, err := f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "open"})
	require.NoError(t, err)
	secret, err := f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "secret", Visibility: "private"})
	require.NoError(t, err)

	list, err := f.channels.ListByWorkspace(ctx, bob, f.workspace)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "open", list[0].Name)

	_, err = f.channels.GetByID(ctx, bob, secret.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.channels.AddMember(ctx, bob, secret.ID, bob), ErrNotFound)
}

func TestDeleteChannelPurgesScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)
	f.send(t, alice, scope, bob)
	require.Equal(t, 1, f.count(t, bob, scope))

	assert.ErrorIs(t, f.channels.Delete(ctx, bob, scope.ID), ErrForbidden)
	require.NoError(t, f.channels.Delete(ctx, alice, scope.ID))

	assert.Equal(t, 0, f.count(t, bob, scope))
	list, err := f.reads.Notifications(ctx, bob, false, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Contains(t, f.publisher.closedRooms, scope.Room())
	assert.Len(t, f.publisher.byEvent(EventChannelDeleted), 1)
}

func TestFailedPurgeKeepsChannel(t *testing.T) {
	purger := &failingPurger{fail: true}
	f := newFixture(t, withPurger(func(next ScopePurger) ScopePurger {
		purger.next = next
		return purger
	}))
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")
	scope := f.publicChannel(t, alice)
	f.send(t, alice, scope)

	require.ErrorIs(t, f.channels.Delete(ctx, alice, scope.ID), repository.ErrUnavailable)
	_, err := f.channels.GetByID(ctx, bob, scope.ID)
	require.NoError(t, err, "the channel survives a failed purge")
	assert.Empty(t, f.publisher.byEvent(EventChannelDeleted))
	assert.Equal(t, 1, f.count(t, bob, scope))

	purger.setFail(false)
	require.NoError(t, f.channels.Delete(ctx, alice, scope.ID))

	_, err = f.channels.GetByID(ctx, alice, scope.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, err := f.store.Messages().ListByScope(ctx, scope, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, f.count(t, bob, scope))
	assert.Len(t, f.publisher.byEvent(EventChannelDeleted), 1)

	_, err = f.messages.Send(ctx, alice, scope, SendMessageInput{Content: "late"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeavingChannelKeepsRoomWhenPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "member")
	bob := f.user(t, "member")

	open := f.publicChannel(t, alice)
	require.NoError(t, f.channels.AddMember(ctx, bob, open.ID, bob))
	require.NoError(t, f.channels.RemoveMember(ctx, bob, open.ID, bob))
	assert.NotContains(t, f.publisher.unsubscribed[open.Room()], bob, "bob still reads the public channel")

	secret, err := f.channels.Create(ctx, alice, f.workspace, CreateChannelInput{Name: "secret", Visibility: "private"})
	require.NoError(t, err)
	require.NoError(t, f.channels.AddMember(ctx, alice, secret.ID, bob))
	require.NoError(t, f.channels.RemoveMember(ctx, bob, secret.ID, bob))
	assert.Contains(t, f.publisher.unsubscribed[secret.Scope().Room()], bob)
}

func TestWorkspaceMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "")
	newcomer := f.user(t, "")

	ws, err := f.workspaces.Create(ctx, owner, CreateWorkspaceInput{Name: "Blue Team!"})
	require.NoError(t, err)
	assert.Equal(t, "blue-team", ws.Slug)

	_, err = f.workspaces.Create(ctx, newcomer, CreateWorkspaceInput{Name: "blue team"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	require.NoError(t, f.workspaces.AddMember(ctx, owner, ws.ID, AddWorkspaceMemberInput{UserID: newcomer}))
	assert.ErrorIs(t, f.workspaces.AddMember(ctx, owner, ws.ID, AddWorkspaceMemberInput{UserID: newcomer}), ErrAlreadyMember)
	assert.ErrorIs(t, f.workspaces.AddMember(ctx, newcomer, ws.ID, AddWorkspaceMemberInput{UserID: owner}), ErrForbidden)

	members, err := f.workspaces.ListMembers(ctx, newcomer, ws.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	assert.ErrorIs(t, f.workspaces.RemoveMember(ctx, owner, ws.ID, owner), ErrInvalidState)
	require.NoError(t, f.workspaces.RemoveMember(ctx, newcomer, ws.ID, newcomer))
}
