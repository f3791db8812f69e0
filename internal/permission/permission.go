// Package permission resolves what a user may do in a guild or channel.
//
// Resolution is a pure function of the guild's roles, the member's role
// assignments and the channel's overwrites; nothing here touches storage.
package permission

import "strings"

// Permission is a capability bitmask using the legacy bit layout.
type Permission uint64

const (
	CreateInstantInvite Permission = 1 << 0
	KickMembers         Permission = 1 << 1
	BanMembers          Permission = 1 << 2
	Administrator       Permission = 1 << 3
	ManageChannels      Permission = 1 << 4
	ManageGuild         Permission = 1 << 5
	AddReactions        Permission = 1 << 6
	ViewAuditLog        Permission = 1 << 7
	ReadMessages        Permission = 1 << 10
	SendMessages        Permission = 1 << 11
	SendTTSMessages     Permission = 1 << 12
	ManageMessages      Permission = 1 << 13
	EmbedLinks          Permission = 1 << 14
	AttachFiles         Permission = 1 << 15
	ReadMessageHistory  Permission = 1 << 16
	MentionEveryone     Permission = 1 << 17
	UseExternalEmojis   Permission = 1 << 18
	Connect             Permission = 1 << 20
	Speak               Permission = 1 << 21
	MuteMembers         Permission = 1 << 22
	DeafenMembers       Permission = 1 << 23
	MoveMembers         Permission = 1 << 24
	UseVAD              Permission = 1 << 25
	ChangeNickname      Permission = 1 << 26
	ManageNicknames     Permission = 1 << 27
	ManageRoles         Permission = 1 << 28
	ManageWebhooks      Permission = 1 << 29
	ManageEmojis        Permission = 1 << 30
)

// None grants nothing.
const None Permission = 0

// Default is the mask a fresh @everyone role carries.
const Default = CreateInstantInvite | AddReactions | ReadMessages | SendMessages |
	SendTTSMessages | EmbedLinks | AttachFiles | ReadMessageHistory | MentionEveryone |
	UseExternalEmojis | Connect | Speak | UseVAD | ChangeNickname

var names = map[string]Permission{
	"CREATE_INSTANT_INVITE": CreateInstantInvite,
	"KICK_MEMBERS":          KickMembers,
	"BAN_MEMBERS":           BanMembers,
	"ADMINISTRATOR":         Administrator,
	"MANAGE_CHANNELS":       ManageChannels,
	"MANAGE_GUILD":          ManageGuild,
	"ADD_REACTIONS":         AddReactions,
	"VIEW_AUDIT_LOG":        ViewAuditLog,
	"READ_MESSAGES":         ReadMessages,
	"SEND_MESSAGES":         SendMessages,
	"SEND_TTS_MESSAGES":     SendTTSMessages,
	"MANAGE_MESSAGES":       ManageMessages,
	"EMBED_LINKS":           EmbedLinks,
	"ATTACH_FILES":          AttachFiles,
	"READ_MESSAGE_HISTORY":  ReadMessageHistory,
	"MENTION_EVERYONE":      MentionEveryone,
	"USE_EXTERNAL_EMOJIS":   UseExternalEmojis,
	"CONNECT":               Connect,
	"SPEAK":                 Speak,
	"MUTE_MEMBERS":          MuteMembers,
	"DEAFEN_MEMBERS":        DeafenMembers,
	"MOVE_MEMBERS":          MoveMembers,
	"USE_VAD":               UseVAD,
	"CHANGE_NICKNAME":       ChangeNickname,
	"MANAGE_NICKNAMES":      ManageNicknames,
	"MANAGE_ROLES":          ManageRoles,
	"MANAGE_WEBHOOKS":       ManageWebhooks,
	"MANAGE_EMOJIS":         ManageEmojis,
}

// All is every defined capability.
var All = func() Permission {
	var p Permission
	for _, bit := range names {
		p |= bit
	}
	return p
}()

// ParseName maps a capability name such as "SEND_MESSAGES" to its bit.
func ParseName(name string) (Permission, bool) {
	p, ok := names[strings.ToUpper(strings.TrimSpace(name))]
	return p, ok
}

// Has reports whether every bit of flag is set.
func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// FromMask converts a stored signed mask.
func FromMask(mask int64) Permission {
	return Permission(uint64(mask))
}

// Mask converts back to the stored representation.
func (p Permission) Mask() int64 {
	return int64(p)
}
