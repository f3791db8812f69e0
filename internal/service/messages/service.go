// Package messages implements the message endpoints the gateway exposes
// alongside the socket: send, typing and acknowledge.
package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// Common errors for message operations.
var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrForbidden       = errors.New("missing permissions")
	ErrEmptyMessage    = errors.New("cannot send an empty message")
	ErrMessageTooLong  = errors.New("message too long")
)

// MaxContentLength is the longest message content accepted.
const MaxContentLength = 2000

// Publisher is the part of the event publisher this service drives.
type Publisher interface {
	MessageCreate(ctx context.Context, channel *store.Channel, msg *store.Message) error
	TypingStart(ctx context.Context, channel *store.Channel, userID string, at time.Time) error
	MessageAck(ctx context.Context, userID, channelID, messageID string) error
}

// Service provides message business logic.
type Service struct {
	store     store.Store
	publisher Publisher
	now       func() time.Time
}

// New creates a message service.
func New(st store.Store, publisher Publisher) *Service {
	return &Service{store: st, publisher: publisher, now: time.Now}
}

// Send persists a message from authorID and dispatches MESSAGE_CREATE.
func (s *Service) Send(ctx context.Context, authorID, channelID, content string, tts bool, nonce string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(content)) > MaxContentLength {
		return nil, ErrMessageTooLong
	}

	channel, err := s.authorize(ctx, authorID, channelID, permission.SendMessages)
	if err != nil {
		return nil, err
	}
	if tts && !channel.IsPrivate() {
		if ok, err := s.can(ctx, authorID, channel, permission.SendTTSMessages); err != nil {
			return nil, err
		} else if !ok {
			tts = false
		}
	}

	msg, err := s.store.CreateMessage(ctx, channel.ID, authorID, content, tts, nonce)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := s.publisher.MessageCreate(ctx, channel, msg); err != nil {
		return msg, fmt.Errorf("publish message: %w", err)
	}
	return msg, nil
}

// Typing dispatches TYPING_START for userID in the channel.
func (s *Service) Typing(ctx context.Context, userID, channelID string) error {
	channel, err := s.authorize(ctx, userID, channelID, permission.SendMessages)
	if err != nil {
		return err
	}
	return s.publisher.TypingStart(ctx, channel, userID, s.now())
}

// Acknowledge moves the user's read marker and syncs it to their sessions.
func (s *Service) Acknowledge(ctx context.Context, userID, channelID, messageID string) error {
	channel, err := s.authorize(ctx, userID, channelID, permission.ReadMessages)
	if err != nil {
		return err
	}
	if err := s.store.Acknowledge(ctx, userID, channel.ID, messageID); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	return s.publisher.MessageAck(ctx, userID, channel.ID, messageID)
}

func (s *Service) authorize(ctx context.Context, userID, channelID string, capability permission.Permission) (*store.Channel, error) {
	channel, err := s.store.GetChannelByID(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}

	ok, err := s.can(ctx, userID, channel, capability)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return channel, nil
}

func (s *Service) can(ctx context.Context, userID string, channel *store.Channel, capability permission.Permission) (bool, error) {
	if channel.IsPrivate() {
		return permission.ResolveChannel(channel, nil, userID, capability), nil
	}
	guild, err := s.store.GetGuildByID(ctx, channel.GuildID)
	if err != nil {
		return false, fmt.Errorf("load guild: %w", err)
	}
	return permission.ResolveChannel(channel, guild, userID, capability), nil
}
