package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/utils"
)

// CreateMessage persists a message and bumps the channel's last message id.
func (s *SQLiteStore) CreateMessage(ctx context.Context, channelID, authorID, content string, tts bool, nonce string) (*store.Message, error) {
	channel, err := s.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	author, err := s.GetAccountByID(ctx, authorID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:        utils.NewID(),
		ChannelID: channelID,
		GuildID:   channel.GuildID,
		AuthorID:  authorID,
		Author:    &author.User,
		Content:   content,
		TTS:       tts,
		Nonce:     nonce,
		CreatedAt: time.Now().UTC(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, channel_id, author_id, content, tts, nonce, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ChannelID, msg.AuthorID, msg.Content, msg.TTS, msg.Nonce, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE channels SET last_message_id = ? WHERE id = ?
		`, msg.ID, channelID); err != nil {
			return fmt.Errorf("bump last message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Acknowledge moves the user's read marker in a channel.
func (s *SQLiteStore) Acknowledge(ctx context.Context, userID, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acknowledgements (user_id, channel_id, message_id, mention_count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET message_id = excluded.message_id, mention_count = 0
	`, userID, channelID, messageID)
	if err != nil {
		return fmt.Errorf("upsert acknowledgement: %w", err)
	}
	return nil
}

// GetLatestAcknowledgement returns the user's read marker in a channel.
func (s *SQLiteStore) GetLatestAcknowledgement(ctx context.Context, userID, channelID string) (*store.Acknowledgement, error) {
	ack := store.Acknowledgement{UserID: userID, ChannelID: channelID}
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, mention_count FROM acknowledgements WHERE user_id = ? AND channel_id = ?
	`, userID, channelID).Scan(&ack.MessageID, &ack.MentionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("acknowledgement", channelID)
		}
		return nil, fmt.Errorf("query acknowledgement: %w", err)
	}
	return &ack, nil
}

// GetAcknowledgements lists all of the user's read markers.
func (s *SQLiteStore) GetAcknowledgements(ctx context.Context, userID string) ([]*store.Acknowledgement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, message_id, mention_count FROM acknowledgements WHERE user_id = ? ORDER BY channel_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query acknowledgements: %w", err)
	}
	defer rows.Close()

	acks := []*store.Acknowledgement{}
	for rows.Next() {
		ack := store.Acknowledgement{UserID: userID}
		if err := rows.Scan(&ack.ChannelID, &ack.MessageID, &ack.MentionCount); err != nil {
			return nil, fmt.Errorf("scan acknowledgement: %w", err)
		}
		acks = append(acks, &ack)
	}
	return acks, rows.Err()
}
