package proto

// User is the public user object.
type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Bot           bool    `json:"bot,omitempty"`
}

// SelfUser is the user object sent to its owner in READY.
type SelfUser struct {
	User
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	MFA      bool   `json:"mfa_enabled"`
}

// PartialUser carries only an id, as in presence updates.
type PartialUser struct {
	ID string `json:"id"`
}

// Role is the wire role object.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions int64  `json:"permissions"`
	Position    int    `json:"position"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Mentionable bool   `json:"mentionable"`
	Managed     bool   `json:"managed"`
}

// Member is the wire guild member object.
type Member struct {
	User     User     `json:"user"`
	Nick     *string  `json:"nick"`
	Roles    []string `json:"roles"`
	JoinedAt string   `json:"joined_at"`
	Deaf     bool     `json:"deaf"`
	Mute     bool     `json:"mute"`
	GuildID  string   `json:"guild_id,omitempty"`
}

// Overwrite is the wire permission overwrite.
type Overwrite struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Allow int64  `json:"allow"`
	Deny  int64  `json:"deny"`
}

// Channel covers guild and private channels; unused fields are omitted.
type Channel struct {
	ID                   string      `json:"id"`
	Type                 int         `json:"type"`
	GuildID              string      `json:"guild_id,omitempty"`
	Name                 string      `json:"name,omitempty"`
	Topic                *string     `json:"topic,omitempty"`
	Position             *int        `json:"position,omitempty"`
	ParentID             *string     `json:"parent_id,omitempty"`
	LastMessageID        *string     `json:"last_message_id"`
	PermissionOverwrites []Overwrite `json:"permission_overwrites,omitempty"`
	Recipients           []User      `json:"recipients,omitempty"`
	// Recipient is the single counterpart legacy DM clients read.
	Recipient *User  `json:"recipient,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
	IsPrivate bool   `json:"is_private"`
}

// Presence is a user's replicated status.
type Presence struct {
	User         PartialUser `json:"user"`
	Status       string      `json:"status"`
	Game         *Activity   `json:"game"`
	Activities   []Activity  `json:"activities,omitempty"`
	GuildID      string      `json:"guild_id,omitempty"`
	Roles        []string    `json:"roles,omitempty"`
	Nick         *string     `json:"nick,omitempty"`
	LastModified int64       `json:"last_modified,omitempty"`
}

// Guild is the full guild object sent in READY and GUILD_CREATE.
type Guild struct {
	ID                string     `json:"id"`
	Name              string     `json:"name,omitempty"`
	Icon              *string    `json:"icon,omitempty"`
	Region            string     `json:"region,omitempty"`
	OwnerID           string     `json:"owner_id,omitempty"`
	JoinedAt          string     `json:"joined_at,omitempty"`
	Large             bool       `json:"large,omitempty"`
	MemberCount       int        `json:"member_count,omitempty"`
	Roles             []Role     `json:"roles,omitempty"`
	Members           []Member   `json:"members,omitempty"`
	Channels          []Channel  `json:"channels,omitempty"`
	Presences         []Presence `json:"presences,omitempty"`
	VoiceStates       []any      `json:"voice_states,omitempty"`
	Emojis            []any      `json:"emojis,omitempty"`
	Features          []string   `json:"features,omitempty"`
	AFKTimeout        int        `json:"afk_timeout,omitempty"`
	VerificationLevel int        `json:"verification_level"`
	Unavailable       bool       `json:"unavailable"`
}

// UnavailableGuild is the stub sent for guilds a client may not load.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

// ReadState is one channel's read marker.
type ReadState struct {
	ID            string  `json:"id"`
	LastMessageID *string `json:"last_message_id"`
	MentionCount  int     `json:"mention_count"`
}

// Message is the wire message object.
type Message struct {
	ID              string   `json:"id"`
	ChannelID       string   `json:"channel_id"`
	GuildID         string   `json:"guild_id,omitempty"`
	Author          User     `json:"author"`
	Content         string   `json:"content"`
	Timestamp       string   `json:"timestamp"`
	EditedTimestamp *string  `json:"edited_timestamp"`
	TTS             bool     `json:"tts"`
	MentionEveryone bool     `json:"mention_everyone"`
	Mentions        []User   `json:"mentions"`
	MentionRoles    []string `json:"mention_roles"`
	Attachments     []any    `json:"attachments"`
	Embeds          []any    `json:"embeds"`
	Nonce           string   `json:"nonce,omitempty"`
	Pinned          bool     `json:"pinned"`
	Type            int      `json:"type"`
}
