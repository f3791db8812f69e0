package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAccount(t *testing.T, s *SQLiteStore, name string) *store.Account {
	t.Helper()

	account, err := s.CreateAccount(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return account
}

func TestCreateAccountAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := mustAccount(t, s, "alice")
	assert.Len(t, alice.Discriminator, 4)
	assert.Equal(t, "online", alice.Settings.Status)

	byEmail, err := s.GetAccountByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, err = s.CreateAccount(ctx, "other", "alice@example.com", "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.GetAccountByID(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestUpdateSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")

	settings := alice.Settings
	settings.Status = "dnd"
	require.NoError(t, s.UpdateSettings(ctx, alice.ID, settings))

	reloaded, err := s.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "dnd", reloaded.Settings.Status)
}

func TestCreateGuildSeedsEveryoneAndDefaultChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustAccount(t, s, "owner")

	guild, err := s.CreateGuild(ctx, "Test Guild", owner.ID)
	require.NoError(t, err)

	everyone := guild.EveryoneRole()
	require.NotNil(t, everyone)
	assert.Equal(t, "@everyone", everyone.Name)
	assert.Equal(t, store.DefaultEveryonePermissions, everyone.Permissions)

	require.Len(t, guild.Channels, 1)
	assert.Equal(t, guild.ID, guild.Channels[0].ID)
	require.Len(t, guild.Members, 1)
	assert.Equal(t, owner.ID, guild.Members[0].UserID)
	assert.Equal(t, "owner", guild.Members[0].User.Username)
	assert.Empty(t, guild.Exclusions)
}

func TestMembershipRolesAndOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustAccount(t, s, "owner")
	member := mustAccount(t, s, "member")

	guild, err := s.CreateGuild(ctx, "G", owner.ID)
	require.NoError(t, err)
	role, err := s.CreateRole(ctx, guild.ID, "mods", 1<<13, 1)
	require.NoError(t, err)

	require.NoError(t, s.AddMember(ctx, guild.ID, member.ID))
	require.NoError(t, s.SetMemberRoles(ctx, guild.ID, member.ID, []string{role.ID, guild.ID}))

	channel, err := s.CreateChannel(ctx, guild.ID, store.ChannelTypeGuildText, "staff")
	require.NoError(t, err)
	require.NoError(t, s.SetPermissionOverwrite(ctx, channel.ID, store.Overwrite{ID: guild.ID, Type: store.OverwriteRole, Deny: 1 << 10}))
	require.NoError(t, s.SetPermissionOverwrite(ctx, channel.ID, store.Overwrite{ID: role.ID, Type: store.OverwriteRole, Allow: 1 << 10}))
	// Upsert replaces.
	require.NoError(t, s.SetPermissionOverwrite(ctx, channel.ID, store.Overwrite{ID: role.ID, Type: store.OverwriteRole, Allow: 1 << 11}))

	loaded, err := s.GetGuildByID(ctx, guild.ID)
	require.NoError(t, err)
	m := loaded.Member(member.ID)
	require.NotNil(t, m)
	assert.Equal(t, []string{role.ID}, m.Roles, "@everyone is never stored explicitly")

	staff := loaded.Channel(channel.ID)
	require.NotNil(t, staff)
	assert.Len(t, staff.Overwrites, 2)

	overwrites, err := s.GetChannelPermissionOverwrites(ctx, channel.ID)
	require.NoError(t, err)
	for _, ow := range overwrites {
		if ow.ID == role.ID {
			assert.Equal(t, int64(1<<11), ow.Allow)
		}
	}

	guilds, err := s.GetUsersGuilds(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, guilds, 1)
	assert.Equal(t, guild.ID, guilds[0].ID)

	require.NoError(t, s.RemoveMember(ctx, guild.ID, member.ID))
	guilds, err = s.GetUsersGuilds(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, guilds)
}

func TestPrivateChannels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")
	carol := mustAccount(t, s, "carol")

	dm, err := s.CreatePrivateChannel(ctx, alice.ID, []string{bob.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ChannelTypeDM, dm.Type)
	assert.True(t, dm.IsPrivate())
	assert.ElementsMatch(t, []string{alice.ID, bob.ID}, dm.RecipientIDs())

	group, err := s.CreatePrivateChannel(ctx, alice.ID, []string{bob.ID, carol.ID})
	require.NoError(t, err)
	assert.Equal(t, store.ChannelTypeGroupDM, group.Type)

	_, err = s.CreatePrivateChannel(ctx, alice.ID, []string{alice.ID})
	assert.ErrorIs(t, err, ErrInvalidRecipients)

	channels, err := s.GetPrivateChannels(ctx, carol.ID)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, group.ID, channels[0].ID)
	assert.True(t, channels[0].HasRecipient(carol.ID))
}

func TestMessagesAndAcknowledgements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustAccount(t, s, "owner")
	guild, err := s.CreateGuild(ctx, "G", owner.ID)
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, guild.ID, owner.ID, "hello", false, "n1")
	require.NoError(t, err)
	assert.Equal(t, guild.ID, msg.GuildID)
	assert.Equal(t, "owner", msg.Author.Username)

	channel, err := s.GetChannelByID(ctx, guild.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, channel.LastMessageID)

	_, err = s.GetLatestAcknowledgement(ctx, owner.ID, guild.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Acknowledge(ctx, owner.ID, guild.ID, msg.ID))
	ack, err := s.GetLatestAcknowledgement(ctx, owner.ID, guild.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, ack.MessageID)

	acks, err := s.GetAcknowledgements(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, acks, 1)
}

func TestGuildExclusions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustAccount(t, s, "owner")
	guild, err := s.CreateGuild(ctx, "G", owner.ID)
	require.NoError(t, err)

	require.NoError(t, s.SetGuildExclusions(ctx, guild.ID, []string{"2015", "2016"}))
	loaded, err := s.GetGuildByID(ctx, guild.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ExcludesRelease("2015"))
	assert.False(t, loaded.ExcludesRelease("2017"))
}
