// Package events turns persisted state changes into gateway dispatches.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// Publisher is called by REST collaborators after a successful mutation.
type Publisher struct {
	dispatcher *core.Dispatcher
	ready      *core.ReadyBuilder
}

// New creates a publisher.
func New(d *core.Dispatcher, ready *core.ReadyBuilder) *Publisher {
	return &Publisher{dispatcher: d, ready: ready}
}

func (p *Publisher) dispatch(ctx context.Context, eventType string, pers core.Personalizer, target core.Target) error {
	if _, err := p.dispatcher.Dispatch(ctx, eventType, pers, target); err != nil {
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}
	return nil
}

func channelReaders(channel *store.Channel) core.Target {
	if channel.IsPrivate() {
		return core.InPrivateChannel(channel.ID)
	}
	return core.InChannel(channel.ID)
}

// MessageCreate announces a new message to everyone who can read its channel.
func (p *Publisher) MessageCreate(ctx context.Context, channel *store.Channel, msg *store.Message) error {
	return p.dispatch(ctx, proto.EventMessageCreate, core.Static(core.MessagePayload(msg)), channelReaders(channel))
}

// MessageUpdate announces an edited message.
func (p *Publisher) MessageUpdate(ctx context.Context, channel *store.Channel, msg *store.Message) error {
	return p.dispatch(ctx, proto.EventMessageUpdate, core.Static(core.MessagePayload(msg)), channelReaders(channel))
}

// MessageDelete announces a deleted message.
func (p *Publisher) MessageDelete(ctx context.Context, channel *store.Channel, messageID string) error {
	data := proto.MessageDeleteData{ID: messageID, ChannelID: channel.ID, GuildID: channel.GuildID}
	return p.dispatch(ctx, proto.EventMessageDelete, core.Static(data), channelReaders(channel))
}

// TypingStart tells the channel's readers, except the typist, that userID is typing.
func (p *Publisher) TypingStart(ctx context.Context, channel *store.Channel, userID string, at time.Time) error {
	data := proto.TypingStartData{ChannelID: channel.ID, GuildID: channel.GuildID, UserID: userID, Timestamp: at.Unix()}
	return p.dispatch(ctx, proto.EventTypingStart, core.Except(userID, data), channelReaders(channel))
}

// MessageAck syncs a read marker to the user's own sessions.
func (p *Publisher) MessageAck(ctx context.Context, userID, channelID, messageID string) error {
	data := proto.MessageAckData{ChannelID: channelID, MessageID: messageID}
	return p.dispatch(ctx, proto.EventMessageAck, core.Static(data), core.ToUser(userID))
}

// ChannelCreate announces a new channel; private channels are shaped per recipient.
func (p *Publisher) ChannelCreate(ctx context.Context, channel *store.Channel) error {
	return p.dispatch(ctx, proto.EventChannelCreate, channelPayload(channel), channelReaders(channel))
}

// ChannelUpdate announces changed channel metadata to members who can see it.
func (p *Publisher) ChannelUpdate(ctx context.Context, channel *store.Channel) error {
	target := channelReaders(channel)
	if !channel.IsPrivate() {
		target = core.InChannelWithPermission(channel.ID, permission.ReadMessages)
	}
	return p.dispatch(ctx, proto.EventChannelUpdate, channelPayload(channel), target)
}

// ChannelDelete announces a removed channel. channel and guild are the state
// before deletion; guild is nil for private channels.
func (p *Publisher) ChannelDelete(ctx context.Context, channel *store.Channel, guild *store.Guild) error {
	return p.dispatch(ctx, proto.EventChannelDelete, channelPayload(channel),
		core.ChannelSnapshot(channel, guild, permission.ReadMessages))
}

// ChannelRecipientAdd tells a group's participants about a new recipient and
// sends the channel itself to the newcomer.
func (p *Publisher) ChannelRecipientAdd(ctx context.Context, channel *store.Channel, user *store.User) error {
	data := proto.ChannelRecipientData{ChannelID: channel.ID, User: core.UserPayload(user)}
	if err := p.dispatch(ctx, proto.EventChannelRecipientAdd, core.Except(user.ID, data), core.InPrivateChannel(channel.ID)); err != nil {
		return err
	}
	return p.dispatch(ctx, proto.EventChannelCreate, channelPayload(channel), core.ToUser(user.ID))
}

// ChannelRecipientRemove tells the remaining participants and the removed user.
// channel is the state before removal.
func (p *Publisher) ChannelRecipientRemove(ctx context.Context, channel *store.Channel, user *store.User) error {
	data := proto.ChannelRecipientData{ChannelID: channel.ID, User: core.UserPayload(user)}
	if err := p.dispatch(ctx, proto.EventChannelRecipientRemove, core.Except(user.ID, data),
		core.ChannelSnapshot(channel, nil, permission.None)); err != nil {
		return err
	}
	return p.dispatch(ctx, proto.EventChannelDelete, channelPayload(channel), core.ToUser(user.ID))
}

// GuildCreate sends the full guild to one user, shaped for their client.
func (p *Publisher) GuildCreate(ctx context.Context, guild *store.Guild, userID string) error {
	pers := core.PersonalizeFunc(func(r core.Recipient) (any, bool) {
		return p.ready.GuildCreate(guild, r.UserID, r.Client), true
	})
	return p.dispatch(ctx, proto.EventGuildCreate, pers, core.ToUser(userID))
}

// GuildUpdate announces changed guild settings to its members.
func (p *Publisher) GuildUpdate(ctx context.Context, guild *store.Guild) error {
	pers := core.PersonalizeFunc(func(r core.Recipient) (any, bool) {
		g := core.GuildPayload(guild, r.UserID, nil)
		g.Members, g.Presences = nil, nil
		return g, true
	})
	return p.dispatch(ctx, proto.EventGuildUpdate, pers, core.GuildSnapshot(guild, permission.None))
}

// GuildDelete removes a guild from every member's client. guild is the state
// before deletion.
func (p *Publisher) GuildDelete(ctx context.Context, guild *store.Guild) error {
	data := proto.UnavailableGuild{ID: guild.ID}
	return p.dispatch(ctx, proto.EventGuildDelete, core.Static(data), core.GuildSnapshot(guild, permission.None))
}

// GuildMemberAdd announces a joined member and sends the guild to them.
func (p *Publisher) GuildMemberAdd(ctx context.Context, guild *store.Guild, member *store.Member) error {
	data := core.MemberPayload(member)
	data.GuildID = guild.ID
	if err := p.dispatch(ctx, proto.EventGuildMemberAdd, core.Except(member.UserID, data), core.GuildSnapshot(guild, permission.None)); err != nil {
		return err
	}
	return p.GuildCreate(ctx, guild, member.UserID)
}

// GuildMemberUpdate announces changed roles or nickname.
func (p *Publisher) GuildMemberUpdate(ctx context.Context, guild *store.Guild, member *store.Member) error {
	data := core.MemberPayload(member)
	data.GuildID = guild.ID
	return p.dispatch(ctx, proto.EventGuildMemberUpdate, core.Static(data), core.GuildSnapshot(guild, permission.None))
}

// GuildMemberRemove announces a departed member to the remaining members and
// removes the guild from the departed user's client. guild is the state
// before removal.
func (p *Publisher) GuildMemberRemove(ctx context.Context, guild *store.Guild, user *store.User) error {
	data := proto.GuildMemberRemoveData{GuildID: guild.ID, User: core.UserPayload(user)}
	if err := p.dispatch(ctx, proto.EventGuildMemberRemove, core.Except(user.ID, data), core.GuildSnapshot(guild, permission.None)); err != nil {
		return err
	}
	return p.dispatch(ctx, proto.EventGuildDelete, core.Static(proto.UnavailableGuild{ID: guild.ID}), core.ToUser(user.ID))
}

// GuildRoleCreate announces a new role.
func (p *Publisher) GuildRoleCreate(ctx context.Context, guildID string, role *store.Role) error {
	data := proto.GuildRoleData{GuildID: guildID, Role: core.RolePayload(role)}
	return p.dispatch(ctx, proto.EventGuildRoleCreate, core.Static(data), core.InGuildWithPermission(guildID, permission.None))
}

// GuildRoleUpdate announces a changed role.
func (p *Publisher) GuildRoleUpdate(ctx context.Context, guildID string, role *store.Role) error {
	data := proto.GuildRoleData{GuildID: guildID, Role: core.RolePayload(role)}
	return p.dispatch(ctx, proto.EventGuildRoleUpdate, core.Static(data), core.InGuildWithPermission(guildID, permission.None))
}

// GuildRoleDelete announces a removed role.
func (p *Publisher) GuildRoleDelete(ctx context.Context, guildID, roleID string) error {
	data := proto.GuildRoleDeleteData{GuildID: guildID, RoleID: roleID}
	return p.dispatch(ctx, proto.EventGuildRoleDelete, core.Static(data), core.InGuildWithPermission(guildID, permission.None))
}

// UserUpdate sends the changed account to the user's own sessions.
func (p *Publisher) UserUpdate(ctx context.Context, account *store.Account) error {
	return p.dispatch(ctx, proto.EventUserUpdate, core.Static(core.SelfUserPayload(account)), core.ToUser(account.ID))
}

func channelPayload(channel *store.Channel) core.Personalizer {
	if !channel.IsPrivate() {
		return core.Static(core.ChannelPayload(channel))
	}
	return core.PersonalizeFunc(func(r core.Recipient) (any, bool) {
		return core.PrivateChannelPayload(channel, r.UserID), true
	})
}
