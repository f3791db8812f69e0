package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/utils"
)

// CreateGuild creates a guild owned by ownerID together with its @everyone
// role and a default text channel; the owner becomes the first member.
func (s *SQLiteStore) CreateGuild(ctx context.Context, name, ownerID string) (*store.Guild, error) {
	id := utils.NewID()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guilds (id, name, owner_id) VALUES (?, ?, ?)
		`, id, name, ownerID); err != nil {
			return fmt.Errorf("insert guild: %w", err)
		}
		// @everyone shares the guild id.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roles (id, guild_id, name, permissions, position) VALUES (?, ?, '@everyone', ?, 0)
		`, id, id, store.DefaultEveryonePermissions); err != nil {
			return fmt.Errorf("insert everyone role: %w", err)
		}
		// Legacy clients expect the default channel to share the guild id too.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channels (id, guild_id, type, name) VALUES (?, ?, ?, 'general')
		`, id, id, store.ChannelTypeGuildText); err != nil {
			return fmt.Errorf("insert default channel: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO members (guild_id, user_id) VALUES (?, ?)
		`, id, ownerID); err != nil {
			return fmt.Errorf("insert owner member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetGuildByID(ctx, id)
}

// GetGuildByID loads a guild with roles, members and channels.
func (s *SQLiteStore) GetGuildByID(ctx context.Context, id string) (*store.Guild, error) {
	var (
		guild      store.Guild
		exclusions string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, icon, region, owner_id, exclusions, created_at
		FROM guilds WHERE id = ?
	`, id).Scan(&guild.ID, &guild.Name, &guild.Icon, &guild.Region, &guild.OwnerID, &exclusions, &guild.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("guild", id)
		}
		return nil, fmt.Errorf("query guild: %w", err)
	}
	if err := json.Unmarshal([]byte(exclusions), &guild.Exclusions); err != nil {
		return nil, fmt.Errorf("decode exclusions: %w", err)
	}

	if guild.Roles, err = s.listRoles(ctx, id); err != nil {
		return nil, err
	}
	if guild.Members, err = s.listMembers(ctx, id); err != nil {
		return nil, err
	}
	if guild.Channels, err = s.listGuildChannels(ctx, id); err != nil {
		return nil, err
	}

	return &guild, nil
}

// GetUsersGuilds loads every guild the user is a member of.
func (s *SQLiteStore) GetUsersGuilds(ctx context.Context, userID string) ([]*store.Guild, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id FROM members WHERE user_id = ? ORDER BY joined_at, guild_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user guilds: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan guild id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guild ids: %w", err)
	}

	guilds := make([]*store.Guild, 0, len(ids))
	for _, id := range ids {
		guild, err := s.GetGuildByID(ctx, id)
		if err != nil {
			return nil, err
		}
		guilds = append(guilds, guild)
	}
	return guilds, nil
}

// SetGuildExclusions replaces the release years a guild is hidden from.
func (s *SQLiteStore) SetGuildExclusions(ctx context.Context, guildID string, years []string) error {
	if years == nil {
		years = []string{}
	}
	data, err := json.Marshal(years)
	if err != nil {
		return fmt.Errorf("encode exclusions: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE guilds SET exclusions = ? WHERE id = ?`, string(data), guildID)
	if err != nil {
		return fmt.Errorf("update exclusions: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("guild", guildID)
	}
	return nil
}

// CreateRole adds a role to a guild.
func (s *SQLiteStore) CreateRole(ctx context.Context, guildID, name string, permissions int64, position int) (*store.Role, error) {
	role := &store.Role{
		ID:          utils.NewID(),
		GuildID:     guildID,
		Name:        name,
		Permissions: permissions,
		Position:    position,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, guild_id, name, permissions, position) VALUES (?, ?, ?, ?, ?)
	`, role.ID, role.GuildID, role.Name, role.Permissions, role.Position)
	if err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	return role, nil
}

// UpdateRolePermissions replaces a role's permission mask.
func (s *SQLiteStore) UpdateRolePermissions(ctx context.Context, roleID string, permissions int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE roles SET permissions = ? WHERE id = ?`, permissions, roleID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("role", roleID)
	}
	return nil
}

// AddMember joins userID to the guild.
func (s *SQLiteStore) AddMember(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO members (guild_id, user_id) VALUES (?, ?)
	`, guildID, userID)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// RemoveMember removes userID from the guild and drops their role assignments.
func (s *SQLiteStore) RemoveMember(ctx context.Context, guildID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM member_roles WHERE guild_id = ? AND user_id = ?
		`, guildID, userID); err != nil {
			return fmt.Errorf("delete member roles: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM members WHERE guild_id = ? AND user_id = ?
		`, guildID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
}

// SetMemberRoles replaces the member's explicit roles.
func (s *SQLiteStore) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM member_roles WHERE guild_id = ? AND user_id = ?
		`, guildID, userID); err != nil {
			return fmt.Errorf("clear member roles: %w", err)
		}
		for _, roleID := range roleIDs {
			if roleID == guildID {
				// @everyone is implicit and never stored.
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO member_roles (guild_id, user_id, role_id) VALUES (?, ?, ?)
			`, guildID, userID, roleID); err != nil {
				return fmt.Errorf("insert member role: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) listRoles(ctx context.Context, guildID string) ([]*store.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, name, permissions, position, color, hoist, mentionable
		FROM roles WHERE guild_id = ? ORDER BY position, id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []*store.Role
	for rows.Next() {
		var r store.Role
		if err := rows.Scan(&r.ID, &r.GuildID, &r.Name, &r.Permissions, &r.Position, &r.Color, &r.Hoist, &r.Mentionable); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, &r)
	}
	return roles, rows.Err()
}

func (s *SQLiteStore) listMembers(ctx context.Context, guildID string) ([]*store.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.nick, m.joined_at, u.username, u.discriminator, u.avatar, u.bot
		FROM members m JOIN users u ON u.id = m.user_id
		WHERE m.guild_id = ?
		ORDER BY m.joined_at, m.user_id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}

	var members []*store.Member
	byUser := make(map[string]*store.Member)
	for rows.Next() {
		m := store.Member{GuildID: guildID, User: &store.User{}, Roles: []string{}}
		if err := rows.Scan(&m.UserID, &m.Nick, &m.JoinedAt, &m.User.Username, &m.User.Discriminator, &m.User.Avatar, &m.User.Bot); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.User.ID = m.UserID
		members = append(members, &m)
		byUser[m.UserID] = &m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	roleRows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role_id FROM member_roles WHERE guild_id = ? ORDER BY role_id
	`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query member roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var userID, roleID string
		if err := roleRows.Scan(&userID, &roleID); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		if m, ok := byUser[userID]; ok {
			m.Roles = append(m.Roles, roleID)
		}
	}
	return members, roleRows.Err()
}
