package core

import (
	"context"
	"fmt"

	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// Target selects the users an event goes to.
type Target interface {
	users(ctx context.Context, d *Dispatcher) ([]string, error)
}

type userTarget struct {
	ids []string
}

// ToUser targets every session of one user.
func ToUser(userID string) Target {
	return userTarget{ids: []string{userID}}
}

// ToUsers targets an explicit list of users.
func ToUsers(userIDs ...string) Target {
	return userTarget{ids: userIDs}
}

func (t userTarget) users(context.Context, *Dispatcher) ([]string, error) {
	return uniqueStrings(t.ids), nil
}

type allTarget struct{}

// ToAll targets every live session.
func ToAll() Target {
	return allTarget{}
}

func (allTarget) users(_ context.Context, d *Dispatcher) ([]string, error) {
	return d.sessions.UserIDs(), nil
}

type guildTarget struct {
	guildID    string
	guild      *store.Guild
	capability permission.Permission
}

// InGuild targets guild members with guild-level READ_MESSAGES.
func InGuild(guildID string) Target {
	return guildTarget{guildID: guildID, capability: permission.ReadMessages}
}

// InGuildWithPermission targets guild members holding capability.
func InGuildWithPermission(guildID string, capability permission.Permission) Target {
	return guildTarget{guildID: guildID, capability: capability}
}

// GuildSnapshot targets the members of an already loaded guild, for events
// about state the store no longer has. permission.None selects every member.
func GuildSnapshot(guild *store.Guild, capability permission.Permission) Target {
	return guildTarget{guild: guild, capability: capability}
}

func (t guildTarget) users(ctx context.Context, d *Dispatcher) ([]string, error) {
	guild := t.guild
	if guild == nil {
		var err error
		if guild, err = d.store.GetGuildByID(ctx, t.guildID); err != nil {
			return nil, fmt.Errorf("load guild %s: %w", t.guildID, err)
		}
	}

	ids := make([]string, 0, len(guild.Members))
	for _, m := range guild.Members {
		if t.capability == permission.None || permission.ResolveGuild(guild, m.UserID, t.capability) {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

type channelTarget struct {
	channelID  string
	channel    *store.Channel
	guild      *store.Guild
	capability permission.Permission
	// private skips the permission engine and uses the recipient list.
	private bool
}

// InChannel targets users who can read the channel: guild members passing
// READ_MESSAGES, or the recipients of a private channel.
func InChannel(channelID string) Target {
	return channelTarget{channelID: channelID, capability: permission.ReadMessages}
}

// InChannelWithPermission targets guild members holding capability in the channel.
func InChannelWithPermission(channelID string, capability permission.Permission) Target {
	return channelTarget{channelID: channelID, capability: capability}
}

// InPrivateChannel targets the participants of a DM or group channel.
func InPrivateChannel(channelID string) Target {
	return channelTarget{channelID: channelID, private: true}
}

// ChannelSnapshot targets readers of an already loaded channel. guild is nil
// for private channels.
func ChannelSnapshot(channel *store.Channel, guild *store.Guild, capability permission.Permission) Target {
	return channelTarget{channel: channel, guild: guild, capability: capability}
}

func (t channelTarget) users(ctx context.Context, d *Dispatcher) ([]string, error) {
	channel := t.channel
	if channel == nil {
		var err error
		if channel, err = d.store.GetChannelByID(ctx, t.channelID); err != nil {
			return nil, fmt.Errorf("load channel %s: %w", t.channelID, err)
		}
	}

	if channel.IsPrivate() {
		return uniqueStrings(channel.RecipientIDs()), nil
	}
	if t.private {
		return nil, fmt.Errorf("channel %s is not private", channel.ID)
	}

	guild := t.guild
	if guild == nil {
		var err error
		if guild, err = d.store.GetGuildByID(ctx, channel.GuildID); err != nil {
			return nil, fmt.Errorf("load guild %s: %w", channel.GuildID, err)
		}
	}

	ids := make([]string, 0, len(guild.Members))
	for _, m := range guild.Members {
		if t.capability == permission.None || permission.ResolveChannel(channel, guild, m.UserID, t.capability) {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
