package core

import (
	"time"

	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// timestampLayout is the ISO8601 form legacy clients parse.
const timestampLayout = "2006-01-02T15:04:05.000000+00:00"

// Timestamp formats t for the wire.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UserPayload maps a store user.
func UserPayload(u *store.User) proto.User {
	if u == nil {
		return proto.User{}
	}
	return proto.User{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        optString(u.Avatar),
		Bot:           u.Bot,
	}
}

// SelfUserPayload maps the account of the connecting user.
func SelfUserPayload(a *store.Account) proto.SelfUser {
	return proto.SelfUser{
		User:     UserPayload(&a.User),
		Email:    a.Email,
		Verified: a.Verified,
	}
}

// RolePayload maps a role.
func RolePayload(r *store.Role) proto.Role {
	return proto.Role{
		ID:          r.ID,
		Name:        r.Name,
		Permissions: r.Permissions,
		Position:    r.Position,
		Color:       r.Color,
		Hoist:       r.Hoist,
		Mentionable: r.Mentionable,
	}
}

// MemberPayload maps a guild member.
func MemberPayload(m *store.Member) proto.Member {
	user := store.User{ID: m.UserID}
	if m.User != nil {
		user = *m.User
	}
	return proto.Member{
		User:     UserPayload(&user),
		Nick:     optString(m.Nick),
		Roles:    memberRoles(m),
		JoinedAt: Timestamp(m.JoinedAt),
	}
}

// ChannelPayload maps a guild channel.
func ChannelPayload(c *store.Channel) proto.Channel {
	pos := c.Position
	out := proto.Channel{
		ID:                   c.ID,
		Type:                 int(c.Type),
		GuildID:              c.GuildID,
		Name:                 c.Name,
		Topic:                optString(c.Topic),
		Position:             &pos,
		ParentID:             optString(c.ParentID),
		LastMessageID:        optString(c.LastMessageID),
		PermissionOverwrites: make([]proto.Overwrite, 0, len(c.Overwrites)),
	}
	for _, ow := range c.Overwrites {
		out.PermissionOverwrites = append(out.PermissionOverwrites, proto.Overwrite{
			ID:    ow.ID,
			Type:  string(ow.Type),
			Allow: ow.Allow,
			Deny:  ow.Deny,
		})
	}
	return out
}

// PrivateChannelPayload maps a DM or group channel as seen by viewerID: the
// viewer is left out of the recipients.
func PrivateChannelPayload(c *store.Channel, viewerID string) proto.Channel {
	out := proto.Channel{
		ID:            c.ID,
		Type:          int(c.Type),
		Name:          c.Name,
		LastMessageID: optString(c.LastMessageID),
		OwnerID:       c.OwnerID,
		IsPrivate:     true,
		Recipients:    make([]proto.User, 0, len(c.Recipients)),
	}
	for _, u := range c.Recipients {
		if u.ID == viewerID {
			continue
		}
		out.Recipients = append(out.Recipients, UserPayload(u))
	}
	if c.Type == store.ChannelTypeDM && len(out.Recipients) == 1 {
		r := out.Recipients[0]
		out.Recipient = &r
	}
	return out
}

// AnyChannelPayload picks the guild or private shape.
func AnyChannelPayload(c *store.Channel, viewerID string) proto.Channel {
	if c.IsPrivate() {
		return PrivateChannelPayload(c, viewerID)
	}
	return ChannelPayload(c)
}

// MessagePayload maps a message.
func MessagePayload(m *store.Message) proto.Message {
	author := store.User{ID: m.AuthorID}
	if m.Author != nil {
		author = *m.Author
	}
	out := proto.Message{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		GuildID:      m.GuildID,
		Author:       UserPayload(&author),
		Content:      m.Content,
		Timestamp:    Timestamp(m.CreatedAt),
		TTS:          m.TTS,
		Mentions:     []proto.User{},
		MentionRoles: []string{},
		Attachments:  []any{},
		Embeds:       []any{},
		Nonce:        m.Nonce,
	}
	if m.EditedAt != nil {
		out.EditedTimestamp = optString(Timestamp(*m.EditedAt))
	}
	return out
}

// PresencePayload maps a presence without guild context.
func PresencePayload(userID string, p Presence) proto.Presence {
	out := proto.Presence{
		User:         proto.PartialUser{ID: userID},
		Status:       string(p.Visible().Status),
		LastModified: p.Since,
	}
	if p.Visible().Status != StatusOffline && p.Activity != nil {
		a := *p.Activity
		out.Game = &a
	}
	return out
}

// GuildPayload builds the full guild object for viewerID: only channels the
// viewer can read are included, with online presences of other members.
func GuildPayload(g *store.Guild, viewerID string, presenceOf func(userID string) Presence) proto.Guild {
	out := proto.Guild{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        optString(g.Icon),
		Region:      g.Region,
		OwnerID:     g.OwnerID,
		MemberCount: len(g.Members),
		Roles:       make([]proto.Role, 0, len(g.Roles)),
		Members:     make([]proto.Member, 0, len(g.Members)),
		Channels:    []proto.Channel{},
		Presences:   []proto.Presence{},
		VoiceStates: []any{},
		Emojis:      []any{},
		Features:    []string{},
		AFKTimeout:  300,
	}
	if m := g.Member(viewerID); m != nil {
		out.JoinedAt = Timestamp(m.JoinedAt)
	}
	for _, r := range g.Roles {
		out.Roles = append(out.Roles, RolePayload(r))
	}
	for _, m := range g.Members {
		out.Members = append(out.Members, MemberPayload(m))
		if presenceOf == nil || m.UserID == viewerID {
			continue
		}
		if p := presenceOf(m.UserID); p.Status != StatusOffline {
			out.Presences = append(out.Presences, PresencePayload(m.UserID, p))
		}
	}
	for _, c := range permission.VisibleChannels(g, viewerID) {
		out.Channels = append(out.Channels, ChannelPayload(c))
	}
	return out
}

// ReadStatePayload maps a read marker.
func ReadStatePayload(a *store.Acknowledgement) proto.ReadState {
	return proto.ReadState{
		ID:            a.ChannelID,
		LastMessageID: optString(a.MessageID),
		MentionCount:  a.MentionCount,
	}
}
