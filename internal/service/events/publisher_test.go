package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/store/sqlite"
)

type captureTransport struct {
	mu     sync.Mutex
	frames []*proto.Frame
}

func (c *captureTransport) WriteFrame(_ context.Context, f *proto.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureTransport) Close(proto.CloseCode, string) {}

func (c *captureTransport) events(eventType string) []*proto.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*proto.Frame
	for _, f := range c.frames {
		if f.T != nil && *f.T == eventType {
			out = append(out, f)
		}
	}
	return out
}

// waitEvent returns the first frame of eventType once it was written.
func (c *captureTransport) waitEvent(t *testing.T, eventType string) *proto.Frame {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.events(eventType)) > 0 }, 2*time.Second, 5*time.Millisecond,
		"no %s received", eventType)
	return c.events(eventType)[0]
}

type env struct {
	st       *sqlite.SQLiteStore
	registry *core.Registry
	pub      *Publisher

	owner, member *store.Account
	guild         *store.Guild
	general       *store.Channel
	conns         map[string]*captureTransport
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{st: st, conns: make(map[string]*captureTransport)}
	e.owner, err = st.CreateAccount(ctx, "owner", "owner@example.com", "hash")
	require.NoError(t, err)
	e.member, err = st.CreateAccount(ctx, "member", "member@example.com", "hash")
	require.NoError(t, err)

	g, err := st.CreateGuild(ctx, "guild", e.owner.ID)
	require.NoError(t, err)
	require.NoError(t, st.AddMember(ctx, g.ID, e.member.ID))
	e.guild, err = st.GetGuildByID(ctx, g.ID)
	require.NoError(t, err)
	e.general = e.guild.Channel(g.ID)

	e.registry = core.NewRegistry(core.RegistryOptions{}, nil)
	disp := core.NewDispatcher(e.registry, st, 8, nil)
	ready := core.NewReadyBuilder(st, e.registry.Presence, 41250, nil)
	e.pub = New(disp, ready)
	return e
}

func (e *env) connect(t *testing.T, userID string) *captureTransport {
	t.Helper()
	tr := &captureTransport{}
	_, err := e.registry.Identify(context.Background(), core.IdentifyParams{
		UserID:    userID,
		Transport: tr,
		Client:    core.ClientInfo{Version: 6},
		Presence:  core.Presence{Status: core.StatusOnline},
	}, func(string) (any, error) { return nil, nil })
	require.NoError(t, err)
	e.conns[userID] = tr
	return tr
}

func TestMessageCreateReachesChannelReaders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)
	memberTr := e.connect(t, e.member.ID)

	msg, err := e.st.CreateMessage(ctx, e.general.ID, e.owner.ID, "hello", false, "")
	require.NoError(t, err)
	require.NoError(t, e.pub.MessageCreate(ctx, e.general, msg))

	for _, tr := range []*captureTransport{ownerTr, memberTr} {
		f := tr.waitEvent(t, proto.EventMessageCreate)
		assert.Equal(t, "hello", f.D.(proto.Message).Content)
	}
}

func TestTypingSkipsTypist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)
	memberTr := e.connect(t, e.member.ID)

	require.NoError(t, e.pub.TypingStart(ctx, e.general, e.member.ID, time.Unix(100, 0)))
	f := ownerTr.waitEvent(t, proto.EventTypingStart)
	assert.Equal(t, int64(100), f.D.(proto.TypingStartData).Timestamp)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, memberTr.events(proto.EventTypingStart))
}

func TestHiddenChannelUpdateSkipsMembersWithoutAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)
	memberTr := e.connect(t, e.member.ID)

	secret, err := e.st.CreateChannel(ctx, e.guild.ID, store.ChannelTypeGuildText, "secret")
	require.NoError(t, err)
	require.NoError(t, e.st.SetPermissionOverwrite(ctx, secret.ID, store.Overwrite{
		ID: e.guild.ID, Type: store.OverwriteRole, Deny: permission.ReadMessages.Mask(),
	}))
	secret, err = e.st.GetChannelByID(ctx, secret.ID)
	require.NoError(t, err)

	require.NoError(t, e.pub.ChannelUpdate(ctx, secret))
	ownerTr.waitEvent(t, proto.EventChannelUpdate)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, memberTr.events(proto.EventChannelUpdate))
}

func TestPrivateChannelCreateIsPersonalized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)
	memberTr := e.connect(t, e.member.ID)

	dm, err := e.st.CreatePrivateChannel(ctx, e.owner.ID, []string{e.member.ID})
	require.NoError(t, err)
	require.NoError(t, e.pub.ChannelCreate(ctx, dm))

	ownerSees := ownerTr.waitEvent(t, proto.EventChannelCreate).D.(proto.Channel)
	require.NotNil(t, ownerSees.Recipient)
	assert.Equal(t, e.member.ID, ownerSees.Recipient.ID)

	memberSees := memberTr.waitEvent(t, proto.EventChannelCreate).D.(proto.Channel)
	require.NotNil(t, memberSees.Recipient)
	assert.Equal(t, e.owner.ID, memberSees.Recipient.ID)
}

func TestGuildMemberRemoveUsesSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)
	memberTr := e.connect(t, e.member.ID)

	before := e.guild
	require.NoError(t, e.st.RemoveMember(ctx, e.guild.ID, e.member.ID))
	require.NoError(t, e.pub.GuildMemberRemove(ctx, before, &e.member.User))

	removed := ownerTr.waitEvent(t, proto.EventGuildMemberRemove).D.(proto.GuildMemberRemoveData)
	assert.Equal(t, e.member.ID, removed.User.ID)

	gone := memberTr.waitEvent(t, proto.EventGuildDelete).D.(proto.UnavailableGuild)
	assert.Equal(t, e.guild.ID, gone.ID)
	assert.Empty(t, memberTr.events(proto.EventGuildMemberRemove))
}

func TestGuildMemberAddSendsGuildCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ownerTr := e.connect(t, e.owner.ID)

	newcomer, err := e.st.CreateAccount(ctx, "newcomer", "new@example.com", "hash")
	require.NoError(t, err)
	newTr := e.connect(t, newcomer.ID)

	require.NoError(t, e.st.AddMember(ctx, e.guild.ID, newcomer.ID))
	guild, err := e.st.GetGuildByID(ctx, e.guild.ID)
	require.NoError(t, err)
	require.NoError(t, e.pub.GuildMemberAdd(ctx, guild, guild.Member(newcomer.ID)))

	added := ownerTr.waitEvent(t, proto.EventGuildMemberAdd).D.(proto.Member)
	assert.Equal(t, newcomer.ID, added.User.ID)
	assert.Equal(t, e.guild.ID, added.GuildID)

	created := newTr.waitEvent(t, proto.EventGuildCreate).D.(proto.Guild)
	assert.Equal(t, e.guild.ID, created.ID)
	assert.Len(t, created.Members, 3)
}

func TestRoleEventsAndAck(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	memberTr := e.connect(t, e.member.ID)

	role, err := e.st.CreateRole(ctx, e.guild.ID, "mods", permission.ManageMessages.Mask(), 1)
	require.NoError(t, err)
	require.NoError(t, e.pub.GuildRoleCreate(ctx, e.guild.ID, role))
	require.NoError(t, e.pub.GuildRoleDelete(ctx, e.guild.ID, role.ID))
	require.NoError(t, e.pub.MessageAck(ctx, e.member.ID, e.general.ID, "42"))

	created := memberTr.waitEvent(t, proto.EventGuildRoleCreate).D.(proto.GuildRoleData)
	assert.Equal(t, "mods", created.Role.Name)
	deleted := memberTr.waitEvent(t, proto.EventGuildRoleDelete).D.(proto.GuildRoleDeleteData)
	assert.Equal(t, role.ID, deleted.RoleID)
	ack := memberTr.waitEvent(t, proto.EventMessageAck).D.(proto.MessageAckData)
	assert.Equal(t, "42", ack.MessageID)
}
