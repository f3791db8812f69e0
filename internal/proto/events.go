package proto

// Dispatch event names.
const (
	EventReady                  = "READY"
	EventResumed                = "RESUMED"
	EventPresenceUpdate         = "PRESENCE_UPDATE"
	EventGuildCreate            = "GUILD_CREATE"
	EventGuildUpdate            = "GUILD_UPDATE"
	EventGuildDelete            = "GUILD_DELETE"
	EventGuildMemberAdd         = "GUILD_MEMBER_ADD"
	EventGuildMemberUpdate      = "GUILD_MEMBER_UPDATE"
	EventGuildMemberRemove      = "GUILD_MEMBER_REMOVE"
	EventGuildMembersChunk      = "GUILD_MEMBERS_CHUNK"
	EventGuildRoleCreate        = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate        = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete        = "GUILD_ROLE_DELETE"
	EventChannelCreate          = "CHANNEL_CREATE"
	EventChannelUpdate          = "CHANNEL_UPDATE"
	EventChannelDelete          = "CHANNEL_DELETE"
	EventChannelRecipientAdd    = "CHANNEL_RECIPIENT_ADD"
	EventChannelRecipientRemove = "CHANNEL_RECIPIENT_REMOVE"
	EventMessageCreate          = "MESSAGE_CREATE"
	EventMessageUpdate          = "MESSAGE_UPDATE"
	EventMessageDelete          = "MESSAGE_DELETE"
	EventMessageAck             = "MESSAGE_ACK"
	EventTypingStart            = "TYPING_START"
	EventUserUpdate             = "USER_UPDATE"
	EventUserSettingsUpdate     = "USER_SETTINGS_UPDATE"
)

// HelloData is the op 10 payload.
type HelloData struct {
	HeartbeatInterval int64    `json:"heartbeat_interval"`
	Trace             []string `json:"_trace,omitempty"`
}

// ReadyData is the READY dispatch payload.
type ReadyData struct {
	Version           int         `json:"v"`
	User              SelfUser    `json:"user"`
	SessionID         string      `json:"session_id"`
	Guilds            []any       `json:"guilds"`
	PrivateChannels   []Channel   `json:"private_channels"`
	Presences         []Presence  `json:"presences"`
	Relationships     []any       `json:"relationships"`
	ReadState         []ReadState `json:"read_state"`
	UserSettings      any         `json:"user_settings"`
	UserGuildSettings []any       `json:"user_guild_settings"`
	ConnectedAccounts []any       `json:"connected_accounts"`
	HeartbeatInterval int64       `json:"heartbeat_interval,omitempty"`
	Trace             []string    `json:"_trace"`
}

// ResumedData is the RESUMED dispatch payload.
type ResumedData struct {
	Trace []string `json:"_trace"`
}

// GuildMembersChunkData answers op 8.
type GuildMembersChunkData struct {
	GuildID string   `json:"guild_id"`
	Members []Member `json:"members"`
}

// GuildMemberRemoveData is the GUILD_MEMBER_REMOVE payload.
type GuildMemberRemoveData struct {
	GuildID string `json:"guild_id"`
	User    User   `json:"user"`
}

// GuildRoleData is the GUILD_ROLE_CREATE/UPDATE payload.
type GuildRoleData struct {
	GuildID string `json:"guild_id"`
	Role    Role   `json:"role"`
}

// GuildRoleDeleteData is the GUILD_ROLE_DELETE payload.
type GuildRoleDeleteData struct {
	GuildID string `json:"guild_id"`
	RoleID  string `json:"role_id"`
}

// ChannelRecipientData is the CHANNEL_RECIPIENT_ADD/REMOVE payload.
type ChannelRecipientData struct {
	ChannelID string `json:"channel_id"`
	User      User   `json:"user"`
}

// MessageDeleteData is the MESSAGE_DELETE payload.
type MessageDeleteData struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
}

// MessageAckData is the MESSAGE_ACK payload.
type MessageAckData struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

// TypingStartData is the TYPING_START payload.
type TypingStartData struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}
