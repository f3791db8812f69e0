package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned (wrapped) when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultEveryonePermissions is the mask a new guild's @everyone role starts with.
const DefaultEveryonePermissions int64 = 104324161

// User is the public part of an account, as embedded in gateway payloads.
type User struct {
	ID            string
	Username      string
	Discriminator string
	Avatar        string
	Bot           bool
}

// Account is a full user record including private fields.
type Account struct {
	User
	Email        string
	PasswordHash string
	Verified     bool
	Settings     UserSettings
	CreatedAt    time.Time
}

// UserSettings are the client-side preferences replayed in READY.
type UserSettings struct {
	Status                string   `json:"status"`
	Theme                 string   `json:"theme"`
	Locale                string   `json:"locale"`
	GuildPositions        []string `json:"guild_positions"`
	ShowCurrentGame       bool     `json:"show_current_game"`
	InlineEmbedMedia      bool     `json:"inline_embed_media"`
	MessageDisplayCompact bool     `json:"message_display_compact"`
}

// DefaultSettings returns the settings a new account starts with.
func DefaultSettings() UserSettings {
	return UserSettings{
		Status:           "online",
		Theme:            "dark",
		Locale:           "en-US",
		GuildPositions:   []string{},
		ShowCurrentGame:  true,
		InlineEmbedMedia: true,
	}
}

// Guild is a server with its roles, members and channels loaded.
type Guild struct {
	ID      string
	Name    string
	Icon    string
	Region  string
	OwnerID string
	// Exclusions lists client release years ("2015", "2016", ...) the guild is hidden from.
	Exclusions []string
	Roles      []*Role
	Members    []*Member
	Channels   []*Channel
	CreatedAt  time.Time
}

// EveryoneRole returns the synthetic @everyone role, which shares the guild id.
func (g *Guild) EveryoneRole() *Role {
	return g.Role(g.ID)
}

// Role looks up a role by id.
func (g *Guild) Role(id string) *Role {
	for _, r := range g.Roles {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Member looks up a member by user id.
func (g *Guild) Member(userID string) *Member {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

// Channel looks up a guild channel by id.
func (g *Guild) Channel(id string) *Channel {
	for _, c := range g.Channels {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ExcludesRelease reports whether clients from the given release year may not see the guild.
func (g *Guild) ExcludesRelease(year string) bool {
	return year != "" && slices.Contains(g.Exclusions, year)
}

// Role is a named permission set inside a guild.
type Role struct {
	ID          string
	GuildID     string
	Name        string
	Permissions int64
	Position    int
	Color       int
	Hoist       bool
	Mentionable bool
}

// Member is a user's membership in a guild.
type Member struct {
	GuildID string
	UserID  string
	User    *User
	Nick    string
	// Roles holds explicitly assigned role ids; @everyone is implicit.
	Roles    []string
	JoinedAt time.Time
}

// HasRole reports whether the member was explicitly assigned roleID.
func (m *Member) HasRole(roleID string) bool {
	return slices.Contains(m.Roles, roleID)
}

// ChannelType mirrors the legacy numeric channel types.
type ChannelType int

const (
	ChannelTypeGuildText     ChannelType = 0
	ChannelTypeDM            ChannelType = 1
	ChannelTypeGuildVoice    ChannelType = 2
	ChannelTypeGroupDM       ChannelType = 3
	ChannelTypeGuildCategory ChannelType = 4
)

// IsPrivate reports whether the type is a DM or group DM.
func (t ChannelType) IsPrivate() bool {
	return t == ChannelTypeDM || t == ChannelTypeGroupDM
}

// Channel is a guild channel or a private (DM/group) channel.
type Channel struct {
	ID            string
	GuildID       string // empty for private channels
	Type          ChannelType
	Name          string
	Topic         string
	Position      int
	ParentID      string
	LastMessageID string
	OwnerID       string // group DM owner
	Recipients    []*User
	Overwrites    []Overwrite
}

// IsPrivate reports whether the channel lives outside any guild.
func (c *Channel) IsPrivate() bool {
	return c.GuildID == "" || c.Type.IsPrivate()
}

// HasRecipient reports whether userID currently participates in a private channel.
func (c *Channel) HasRecipient(userID string) bool {
	for _, u := range c.Recipients {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// RecipientIDs returns the ids of all participants.
func (c *Channel) RecipientIDs() []string {
	ids := make([]string, 0, len(c.Recipients))
	for _, u := range c.Recipients {
		ids = append(ids, u.ID)
	}
	return ids
}

// OverwriteType tells whether an overwrite targets a role or a member.
type OverwriteType string

const (
	OverwriteRole   OverwriteType = "role"
	OverwriteMember OverwriteType = "member"
)

// Overwrite is a per-channel allow/deny exception for one role or member.
type Overwrite struct {
	ID    string
	Type  OverwriteType
	Allow int64
	Deny  int64
}

// Message is a persisted chat message.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Author    *User
	Content   string
	TTS       bool
	Nonce     string
	CreatedAt time.Time
	EditedAt  *time.Time
}

// Acknowledgement is a user's read marker in a channel.
type Acknowledgement struct {
	UserID       string
	ChannelID    string
	MessageID    string
	MentionCount int
}

// AccountStore handles account persistence.
type AccountStore interface {
	// CreateAccount inserts a new account with a generated id and discriminator.
	CreateAccount(ctx context.Context, username, email, passwordHash string) (*Account, error)

	// GetAccountByID retrieves an account by id.
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// GetAccountByEmail retrieves an account by its login email.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// UpdateSettings replaces the account's client settings.
	UpdateSettings(ctx context.Context, id string, settings UserSettings) error
}

// GuildStore handles guilds, roles and memberships.
type GuildStore interface {
	// CreateGuild creates a guild owned by ownerID together with its @everyone
	// role and a default text channel; the owner becomes the first member.
	CreateGuild(ctx context.Context, name, ownerID string) (*Guild, error)

	// GetGuildByID loads a guild with roles, members and channels.
	GetGuildByID(ctx context.Context, id string) (*Guild, error)

	// GetUsersGuilds loads every guild the user is a member of.
	GetUsersGuilds(ctx context.Context, userID string) ([]*Guild, error)

	// SetGuildExclusions replaces the release years a guild is hidden from.
	SetGuildExclusions(ctx context.Context, guildID string, years []string) error

	// CreateRole adds a role to a guild.
	CreateRole(ctx context.Context, guildID, name string, permissions int64, position int) (*Role, error)

	// UpdateRolePermissions replaces a role's permission mask.
	UpdateRolePermissions(ctx context.Context, roleID string, permissions int64) error

	// AddMember joins userID to the guild.
	AddMember(ctx context.Context, guildID, userID string) error

	// RemoveMember removes userID from the guild and drops their role assignments.
	RemoveMember(ctx context.Context, guildID, userID string) error

	// SetMemberRoles replaces the member's explicit roles.
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error
}

// ChannelStore handles guild and private channels.
type ChannelStore interface {
	// CreateChannel adds a channel to a guild.
	CreateChannel(ctx context.Context, guildID string, channelType ChannelType, name string) (*Channel, error)

	// CreatePrivateChannel creates a DM (two recipients) or group DM.
	CreatePrivateChannel(ctx context.Context, ownerID string, recipientIDs []string) (*Channel, error)

	// GetChannelByID loads a channel with overwrites or recipients.
	GetChannelByID(ctx context.Context, id string) (*Channel, error)

	// GetPrivateChannels lists the DM and group channels the user participates in.
	GetPrivateChannels(ctx context.Context, userID string) ([]*Channel, error)

	// GetChannelPermissionOverwrites lists the overwrites defined on a channel.
	GetChannelPermissionOverwrites(ctx context.Context, channelID string) ([]Overwrite, error)

	// SetPermissionOverwrite inserts or replaces one overwrite on a channel.
	SetPermissionOverwrite(ctx context.Context, channelID string, overwrite Overwrite) error
}

// MessageStore handles message persistence and read state.
type MessageStore interface {
	// CreateMessage persists a message and bumps the channel's last message id.
	CreateMessage(ctx context.Context, channelID, authorID, content string, tts bool, nonce string) (*Message, error)

	// Acknowledge moves the user's read marker in a channel.
	Acknowledge(ctx context.Context, userID, channelID, messageID string) error

	// GetLatestAcknowledgement returns the user's read marker in a channel.
	GetLatestAcknowledgement(ctx context.Context, userID, channelID string) (*Acknowledgement, error)

	// GetAcknowledgements lists all of the user's read markers.
	GetAcknowledgements(ctx context.Context, userID string) ([]*Acknowledgement, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	AccountStore
	GuildStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
