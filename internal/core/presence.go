package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// Status is a presence status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// ParseStatus accepts only the statuses a client may set.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible, StatusOffline:
		return s, true
	default:
		return "", false
	}
}

// Presence is the status and activity a session shows.
type Presence struct {
	Status   Status
	Activity *proto.Activity
	Since    int64
	AFK      bool
}

// Offline is the presence of a user with no attached session.
func Offline() Presence {
	return Presence{Status: StatusOffline}
}

// ParsePresence validates an op 3 payload (or the presence embedded in identify).
func ParsePresence(d *proto.PresenceUpdateData) (Presence, error) {
	status, ok := ParseStatus(d.Status)
	if !ok {
		return Presence{}, fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	p := Presence{Status: status, AFK: d.AFK, Activity: d.PrimaryActivity()}
	if d.Since != nil {
		p.Since = *d.Since
	}
	return p, nil
}

// Visible returns the presence as others see it: invisible reads as offline.
func (p Presence) Visible() Presence {
	if p.Status == StatusInvisible || p.Status == StatusOffline {
		return Offline()
	}
	return p
}

// Equal compares status and activity.
func (p Presence) Equal(other Presence) bool {
	if p.Status != other.Status {
		return false
	}
	if (p.Activity == nil) != (other.Activity == nil) {
		return false
	}
	return p.Activity == nil || *p.Activity == *other.Activity
}

// PresenceBroadcaster fans aggregate presence changes out to everyone who can
// see the user: one update per shared guild, plus private channel partners
// who share no guild.
type PresenceBroadcaster struct {
	dispatcher *Dispatcher
	store      Store
	logger     *zerolog.Logger
}

// NewPresenceBroadcaster wires a broadcaster to the dispatcher.
func NewPresenceBroadcaster(d *Dispatcher, st Store, logger *zerolog.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{dispatcher: d, store: st, logger: logger}
}

// PresenceChanged implements PresenceNotifier.
func (b *PresenceBroadcaster) PresenceChanged(ctx context.Context, userID string, p Presence) {
	if err := b.broadcast(ctx, userID, p); err != nil {
		b.logger.Warn().Err(err).Str("user_id", userID).Str("status", string(p.Status)).Msg("presence fanout failed")
	}
}

func (b *PresenceBroadcaster) broadcast(ctx context.Context, userID string, p Presence) error {
	guilds, err := b.store.GetUsersGuilds(ctx, userID)
	if err != nil {
		return fmt.Errorf("load guilds: %w", err)
	}

	shared := map[string]struct{}{userID: {}}
	for _, g := range guilds {
		payload := PresencePayload(userID, p)
		payload.GuildID = g.ID
		if m := g.Member(userID); m != nil {
			payload.Roles = memberRoles(m)
			payload.Nick = optString(m.Nick)
		}
		for _, m := range g.Members {
			shared[m.UserID] = struct{}{}
		}
		if _, err := b.dispatcher.Dispatch(ctx, proto.EventPresenceUpdate, presenceFor(userID, payload), GuildSnapshot(g, permission.None)); err != nil {
			b.logger.Warn().Err(err).Str("guild_id", g.ID).Msg("guild presence fanout failed")
		}
	}

	channels, err := b.store.GetPrivateChannels(ctx, userID)
	if err != nil {
		return fmt.Errorf("load private channels: %w", err)
	}
	var partners []string
	for _, ch := range channels {
		for _, id := range ch.RecipientIDs() {
			if _, ok := shared[id]; ok {
				continue
			}
			shared[id] = struct{}{}
			partners = append(partners, id)
		}
	}
	if len(partners) > 0 {
		_, err := b.dispatcher.Dispatch(ctx, proto.EventPresenceUpdate, presenceFor(userID, PresencePayload(userID, p)), ToUsers(partners...))
		if err != nil {
			return fmt.Errorf("partner presence fanout: %w", err)
		}
	}
	return nil
}

// presenceFor skips the user's own sessions and shapes activities by version.
func presenceFor(userID string, payload proto.Presence) Personalizer {
	return PersonalizeFunc(func(r Recipient) (any, bool) {
		if r.UserID == userID {
			return nil, false
		}
		return VersionedPresence(payload, r.Client.Version), true
	})
}

// VersionedPresence adds the activities list for protocol 7 and later.
func VersionedPresence(p proto.Presence, version int) proto.Presence {
	if version >= 7 && p.Game != nil {
		p.Activities = []proto.Activity{*p.Game}
	} else {
		p.Activities = nil
	}
	return p
}

func memberRoles(m *store.Member) []string {
	roles := make([]string, len(m.Roles))
	copy(roles, m.Roles)
	return roles
}
