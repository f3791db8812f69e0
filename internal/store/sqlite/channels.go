package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/utils"
)

// ErrInvalidRecipients is returned for private channels with fewer than two participants.
var ErrInvalidRecipients = errors.New("private channel needs at least two recipients")

const channelColumns = `id, COALESCE(guild_id, ''), type, name, topic, position, parent_id, last_message_id, owner_id`

// CreateChannel adds a channel to a guild.
func (s *SQLiteStore) CreateChannel(ctx context.Context, guildID string, channelType store.ChannelType, name string) (*store.Channel, error) {
	if channelType.IsPrivate() {
		return nil, fmt.Errorf("create channel: type %d is not a guild channel", channelType)
	}

	id := utils.NewID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, guild_id, type, name, position)
		VALUES (?, ?, ?, ?, (SELECT COUNT(*) FROM channels WHERE guild_id = ?))
	`, id, guildID, channelType, name, guildID)
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return s.GetChannelByID(ctx, id)
}

// CreatePrivateChannel creates a DM (two recipients) or group DM.
func (s *SQLiteStore) CreatePrivateChannel(ctx context.Context, ownerID string, recipientIDs []string) (*store.Channel, error) {
	participants := uniqueIDs(append([]string{ownerID}, recipientIDs...))
	if len(participants) < 2 {
		return nil, ErrInvalidRecipients
	}

	channelType := store.ChannelTypeDM
	if len(participants) > 2 {
		channelType = store.ChannelTypeGroupDM
	}

	id := utils.NewID()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (id, guild_id, type, owner_id) VALUES (?, NULL, ?, ?)
		`, id, channelType, ownerID); err != nil {
			return fmt.Errorf("insert private channel: %w", err)
		}
		for _, userID := range participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO channel_recipients (channel_id, user_id) VALUES (?, ?)
			`, id, userID); err != nil {
				return fmt.Errorf("insert recipient: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetChannelByID(ctx, id)
}

// GetChannelByID loads a channel with overwrites or recipients.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	channel, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("channel", id)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}

	if channel.IsPrivate() {
		if err := s.loadRecipients(ctx, []*store.Channel{channel}); err != nil {
			return nil, err
		}
		return channel, nil
	}

	if channel.Overwrites, err = s.GetChannelPermissionOverwrites(ctx, id); err != nil {
		return nil, err
	}
	return channel, nil
}

// GetPrivateChannels lists the DM and group channels the user participates in.
func (s *SQLiteStore) GetPrivateChannels(ctx context.Context, userID string) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+channelColumns+`
		FROM channels
		WHERE guild_id IS NULL AND id IN (SELECT channel_id FROM channel_recipients WHERE user_id = ?)
		ORDER BY last_message_id DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query private channels: %w", err)
	}

	var channels []*store.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan private channel: %w", err)
		}
		channels = append(channels, channel)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate private channels: %w", err)
	}

	if err := s.loadRecipients(ctx, channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// GetChannelPermissionOverwrites lists the overwrites defined on a channel.
func (s *SQLiteStore) GetChannelPermissionOverwrites(ctx context.Context, channelID string) ([]store.Overwrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_id, type, allow, deny FROM permission_overwrites WHERE channel_id = ? ORDER BY target_id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query overwrites: %w", err)
	}
	defer rows.Close()

	overwrites := []store.Overwrite{}
	for rows.Next() {
		var ow store.Overwrite
		if err := rows.Scan(&ow.ID, &ow.Type, &ow.Allow, &ow.Deny); err != nil {
			return nil, fmt.Errorf("scan overwrite: %w", err)
		}
		overwrites = append(overwrites, ow)
	}
	return overwrites, rows.Err()
}

// SetPermissionOverwrite inserts or replaces one overwrite on a channel.
func (s *SQLiteStore) SetPermissionOverwrite(ctx context.Context, channelID string, overwrite store.Overwrite) error {
	if overwrite.Type != store.OverwriteRole && overwrite.Type != store.OverwriteMember {
		return fmt.Errorf("set overwrite: unknown type %q", overwrite.Type)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_overwrites (channel_id, target_id, type, allow, deny)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, target_id) DO UPDATE SET type = excluded.type, allow = excluded.allow, deny = excluded.deny
	`, channelID, overwrite.ID, overwrite.Type, overwrite.Allow, overwrite.Deny)
	if err != nil {
		return fmt.Errorf("upsert overwrite: %w", err)
	}
	return nil
}

func (s *SQLiteStore) listGuildChannels(ctx context.Context, guildID string) ([]*store.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+channelColumns+` FROM channels WHERE guild_id = ? ORDER BY position, id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}

	var channels []*store.Channel
	byID := make(map[string]*store.Channel)
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channel.Overwrites = []store.Overwrite{}
		channels = append(channels, channel)
		byID[channel.ID] = channel
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	owRows, err := s.db.QueryContext(ctx, `
		SELECT o.channel_id, o.target_id, o.type, o.allow, o.deny
		FROM permission_overwrites o JOIN channels c ON c.id = o.channel_id
		WHERE c.guild_id = ?
		ORDER BY o.target_id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query guild overwrites: %w", err)
	}
	defer owRows.Close()

	for owRows.Next() {
		var (
			channelID string
			ow        store.Overwrite
		)
		if err := owRows.Scan(&channelID, &ow.ID, &ow.Type, &ow.Allow, &ow.Deny); err != nil {
			return nil, fmt.Errorf("scan guild overwrite: %w", err)
		}
		if c, ok := byID[channelID]; ok {
			c.Overwrites = append(c.Overwrites, ow)
		}
	}
	return channels, owRows.Err()
}

func (s *SQLiteStore) loadRecipients(ctx context.Context, channels []*store.Channel) error {
	if len(channels) == 0 {
		return nil
	}

	byID := make(map[string]*store.Channel, len(channels))
	args := make([]any, 0, len(channels))
	for _, c := range channels {
		c.Recipients = []*store.User{}
		byID[c.ID] = c
		args = append(args, c.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.channel_id, u.id, u.username, u.discriminator, u.avatar, u.bot
		FROM channel_recipients r JOIN users u ON u.id = r.user_id
		WHERE r.channel_id IN (`+placeholders+`)
		ORDER BY u.id
	`, args...)
	if err != nil {
		return fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			channelID string
			u         store.User
		)
		if err := rows.Scan(&channelID, &u.ID, &u.Username, &u.Discriminator, &u.Avatar, &u.Bot); err != nil {
			return fmt.Errorf("scan recipient: %w", err)
		}
		if c, ok := byID[channelID]; ok {
			c.Recipients = append(c.Recipients, &u)
		}
	}
	return rows.Err()
}

func scanChannel(row rowScanner) (*store.Channel, error) {
	var c store.Channel
	err := row.Scan(&c.ID, &c.GuildID, &c.Type, &c.Name, &c.Topic, &c.Position, &c.ParentID, &c.LastMessageID, &c.OwnerID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
