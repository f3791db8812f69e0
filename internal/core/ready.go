package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// ReadyBuilder assembles READY and other snapshot payloads.
type ReadyBuilder struct {
	store             Store
	presences         func(userID string) Presence
	heartbeatInterval int64
	trace             []string
}

// NewReadyBuilder creates a builder. presenceOf reports a user's visible presence.
func NewReadyBuilder(st Store, presenceOf func(userID string) Presence, heartbeatIntervalMS int64, trace []string) *ReadyBuilder {
	return &ReadyBuilder{
		store:             st,
		presences:         presenceOf,
		heartbeatInterval: heartbeatIntervalMS,
		trace:             trace,
	}
}

// Trace returns the _trace list sent in Hello, READY and RESUMED.
func (b *ReadyBuilder) Trace() []string {
	return b.trace
}

// Build returns the READY payload for a fresh session of account.
func (b *ReadyBuilder) Build(ctx context.Context, account *store.Account, sessionID string, client ClientInfo) (*proto.ReadyData, error) {
	userID := account.ID

	guilds, err := b.store.GetUsersGuilds(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load guilds: %w", err)
	}
	channels, err := b.store.GetPrivateChannels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load private channels: %w", err)
	}
	acks, err := b.store.GetAcknowledgements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load read state: %w", err)
	}

	ready := &proto.ReadyData{
		Version:           client.Version,
		User:              SelfUserPayload(account),
		SessionID:         sessionID,
		Guilds:            make([]any, 0, len(guilds)),
		PrivateChannels:   make([]proto.Channel, 0, len(channels)),
		Presences:         []proto.Presence{},
		Relationships:     []any{},
		ReadState:         make([]proto.ReadState, 0, len(acks)),
		UserSettings:      account.Settings,
		UserGuildSettings: []any{},
		ConnectedAccounts: []any{},
		Trace:             b.trace,
	}
	if client.Release.ExpectsReadyHeartbeat() {
		ready.HeartbeatInterval = b.heartbeatInterval
	}

	year := client.Release.Year()
	for _, g := range guilds {
		if g.ExcludesRelease(year) {
			ready.Guilds = append(ready.Guilds, proto.UnavailableGuild{ID: g.ID, Unavailable: true})
			continue
		}
		gp := GuildPayload(g, userID, b.presences)
		for i := range gp.Presences {
			gp.Presences[i] = VersionedPresence(gp.Presences[i], client.Version)
		}
		ready.Guilds = append(ready.Guilds, gp)
	}

	partners := make(map[string]struct{})
	for _, c := range channels {
		ready.PrivateChannels = append(ready.PrivateChannels, PrivateChannelPayload(c, userID))
		for _, id := range c.RecipientIDs() {
			if id != userID {
				partners[id] = struct{}{}
			}
		}
	}
	for _, id := range sortedKeys(partners) {
		if b.presences == nil {
			break
		}
		if p := b.presences(id); p.Status != StatusOffline {
			ready.Presences = append(ready.Presences, VersionedPresence(PresencePayload(id, p), client.Version))
		}
	}

	for _, a := range acks {
		ready.ReadState = append(ready.ReadState, ReadStatePayload(a))
	}
	return ready, nil
}

// GuildCreate builds the GUILD_CREATE payload of guild for viewerID, or the
// unavailable stub when the viewer's release is excluded.
func (b *ReadyBuilder) GuildCreate(g *store.Guild, viewerID string, client ClientInfo) any {
	if g.ExcludesRelease(client.Release.Year()) {
		return proto.UnavailableGuild{ID: g.ID, Unavailable: true}
	}
	gp := GuildPayload(g, viewerID, b.presences)
	for i := range gp.Presences {
		gp.Presences[i] = VersionedPresence(gp.Presences[i], client.Version)
	}
	return gp
}

// MembersChunk answers op 8: members of guildID whose username or nick starts
// with query, at most limit (0 means all). The requester must be a member.
func (b *ReadyBuilder) MembersChunk(ctx context.Context, guildID, requesterID, query string, limit int) (*proto.GuildMembersChunkData, error) {
	g, err := b.store.GetGuildByID(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	if g.Member(requesterID) == nil {
		return nil, ErrNotMember
	}

	query = strings.ToLower(query)
	chunk := &proto.GuildMembersChunkData{GuildID: g.ID, Members: []proto.Member{}}
	for _, m := range g.Members {
		if limit > 0 && len(chunk.Members) >= limit {
			break
		}
		if query != "" && !memberMatches(m, query) {
			continue
		}
		chunk.Members = append(chunk.Members, MemberPayload(m))
	}
	return chunk, nil
}

func memberMatches(m *store.Member, query string) bool {
	if strings.HasPrefix(strings.ToLower(m.Nick), query) {
		return true
	}
	return m.User != nil && strings.HasPrefix(strings.ToLower(m.User.Username), query)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
