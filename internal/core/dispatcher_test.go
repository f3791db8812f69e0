package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/permission"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/store/sqlite"
)

// world is a guild owned by alice with bob as member, a channel hidden from
// @everyone, and a DM between alice and carol.
type world struct {
	store    *sqlite.SQLiteStore
	registry *Registry
	disp     *Dispatcher

	alice, bob, carol *store.Account
	guild             *store.Guild
	general           *store.Channel
	secret            *store.Channel
	dm                *store.Channel
}

func newWorld(t *testing.T) *world {
	t.Helper()
	ctx := context.Background()
	st := newTestStore(t)
	w := &world{store: st}

	w.alice = mustAccount(t, st, "alice")
	w.bob = mustAccount(t, st, "bob")
	w.carol = mustAccount(t, st, "carol")

	g, err := st.CreateGuild(ctx, "lounge", w.alice.ID)
	require.NoError(t, err)
	require.NoError(t, st.AddMember(ctx, g.ID, w.bob.ID))

	w.general, err = st.GetChannelByID(ctx, g.ID)
	require.NoError(t, err)
	w.secret, err = st.CreateChannel(ctx, g.ID, store.ChannelTypeGuildText, "secret")
	require.NoError(t, err)
	require.NoError(t, st.SetPermissionOverwrite(ctx, w.secret.ID, store.Overwrite{
		ID: g.ID, Type: store.OverwriteRole, Deny: permission.ReadMessages.Mask(),
	}))
	w.dm, err = st.CreatePrivateChannel(ctx, w.alice.ID, []string{w.carol.ID})
	require.NoError(t, err)

	w.guild, err = st.GetGuildByID(ctx, g.ID)
	require.NoError(t, err)

	w.registry, _ = newTestRegistry(t, 500)
	w.disp = NewDispatcher(w.registry, st, 4, nil)
	return w
}

func (w *world) connect(t *testing.T, a *store.Account) (*Session, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	s := identify(t, w.registry, a.ID, tr)
	tr.waitFrames(t, 1)
	return s, tr
}

func eventsOf(frames []*proto.Frame, eventType string) []*proto.Frame {
	var out []*proto.Frame
	for _, f := range frames {
		if f.T != nil && *f.T == eventType {
			out = append(out, f)
		}
	}
	return out
}

func TestDispatchInChannelRespectsOverwrites(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, aliceTr := w.connect(t, w.alice)
	_, bobTr := w.connect(t, w.bob)

	n, err := w.disp.Dispatch(ctx, proto.EventMessageCreate, Static("hidden"), InChannel(w.secret.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the owner reads the secret channel")

	n, err = w.disp.Dispatch(ctx, proto.EventMessageCreate, Static("public"), InChannel(w.general.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	aliceFrames := aliceTr.waitFrames(t, 3)
	assert.Len(t, eventsOf(aliceFrames, proto.EventMessageCreate), 2)
	bobFrames := bobTr.waitFrames(t, 2)
	msgs := eventsOf(bobFrames, proto.EventMessageCreate)
	require.Len(t, msgs, 1)
	assert.Equal(t, "public", msgs[0].D)
}

func TestDispatchMemberAllowBeatsRoleDeny(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	role, err := w.store.CreateRole(ctx, w.guild.ID, "R", permission.SendMessages.Mask(), 1)
	require.NoError(t, err)
	require.NoError(t, w.store.SetMemberRoles(ctx, w.guild.ID, w.bob.ID, []string{role.ID}))
	require.NoError(t, w.store.SetPermissionOverwrite(ctx, w.general.ID, store.Overwrite{
		ID: role.ID, Type: store.OverwriteRole, Deny: permission.SendMessages.Mask(),
	}))
	require.NoError(t, w.store.SetPermissionOverwrite(ctx, w.general.ID, store.Overwrite{
		ID: w.bob.ID, Type: store.OverwriteMember, Allow: permission.SendMessages.Mask(),
	}))

	_, bobTr := w.connect(t, w.bob)
	n, err := w.disp.Dispatch(ctx, proto.EventChannelUpdate, Static("x"), InChannelWithPermission(w.general.ID, permission.SendMessages))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	bobTr.waitFrames(t, 2)
}

func TestDispatchInPrivateChannel(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.connect(t, w.alice)
	w.connect(t, w.bob)
	_, carolTr := w.connect(t, w.carol)

	n, err := w.disp.Dispatch(ctx, proto.EventTypingStart, Static("typing"), InPrivateChannel(w.dm.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	carolTr.waitFrames(t, 2)

	_, err = w.disp.Dispatch(ctx, proto.EventTypingStart, Static("typing"), InPrivateChannel(w.general.ID))
	assert.Error(t, err)
}

func TestDispatchPersonalizesPerRecipient(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, aliceTr := w.connect(t, w.alice)
	_, carolTr := w.connect(t, w.carol)

	n, err := w.disp.Dispatch(ctx, proto.EventChannelCreate, PersonalizeFunc(func(r Recipient) (any, bool) {
		return PrivateChannelPayload(w.dm, r.UserID), true
	}), InPrivateChannel(w.dm.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for tr, other := range map[*fakeTransport]string{aliceTr: w.carol.ID, carolTr: w.alice.ID} {
		frames := eventsOf(tr.waitFrames(t, 2), proto.EventChannelCreate)
		require.Len(t, frames, 1)
		ch := frames[0].D.(proto.Channel)
		require.Len(t, ch.Recipients, 1)
		assert.Equal(t, other, ch.Recipients[0].ID)
	}

	n, err = w.disp.Dispatch(ctx, proto.EventTypingStart, Except(w.alice.ID, "x"), InPrivateChannel(w.dm.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatchToAllAndToUser(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.connect(t, w.alice)
	w.connect(t, w.bob)

	n, err := w.disp.Dispatch(ctx, proto.EventUserUpdate, Static("x"), ToAll())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.disp.Dispatch(ctx, proto.EventMessageAck, Static("x"), ToUsers(w.bob.ID, w.bob.ID, "offline-user"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatchPreservesOrderPerSession(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, aliceTr := w.connect(t, w.alice)
	_, bobTr := w.connect(t, w.bob)

	for i := 0; i < 50; i++ {
		_, err := w.disp.Dispatch(ctx, proto.EventMessageCreate, Static(i), InGuild(w.guild.ID))
		require.NoError(t, err)
	}

	for _, tr := range []*fakeTransport{aliceTr, bobTr} {
		msgs := eventsOf(tr.waitFrames(t, 51), proto.EventMessageCreate)
		require.Len(t, msgs, 50)
		for i, f := range msgs {
			assert.Equal(t, i, f.D)
		}
	}
}

func TestDispatchBuffersForDetachedSession(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	bob, bobTr := w.connect(t, w.bob)
	require.True(t, w.registry.Detach(ctx, bob, bobTr, proto.CloseGoingAway, ""))

	n, err := w.disp.Dispatch(ctx, proto.EventMessageCreate, Static("missed"), InGuild(w.guild.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resumed := newFakeTransport()
	_, err = w.registry.Resume(ctx, ResumeParams{SessionID: bob.ID(), UserID: w.bob.ID, Seq: 1, Transport: resumed})
	require.NoError(t, err)
	frames := resumed.waitFrames(t, 2)
	assert.Equal(t, []string{proto.EventMessageCreate, proto.EventResumed}, frameTypes(frames))
}

func TestPresenceFanout(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.registry.SetPresenceNotifier(NewPresenceBroadcaster(w.disp, w.store, nil))

	alice, aliceTr := w.connect(t, w.alice)
	_, bobTr := w.connect(t, w.bob)
	_, carolTr := w.connect(t, w.carol)

	w.registry.SetPresence(ctx, alice, Presence{Status: StatusIdle, Activity: &proto.Activity{Name: "Doom"}})

	require.Eventually(t, func() bool {
		return len(eventsOf(bobTr.Frames(), proto.EventPresenceUpdate)) > 0 &&
			len(eventsOf(carolTr.Frames(), proto.EventPresenceUpdate)) > 0
	}, 2*time.Second, 5*time.Millisecond)

	last := func(tr *fakeTransport) proto.Presence {
		frames := eventsOf(tr.Frames(), proto.EventPresenceUpdate)
		for i := len(frames) - 1; i >= 0; i-- {
			p := frames[i].D.(proto.Presence)
			if p.User.ID == w.alice.ID {
				return p
			}
		}
		t.Fatalf("no presence for alice")
		return proto.Presence{}
	}

	bobSees := last(bobTr)
	assert.Equal(t, "idle", bobSees.Status)
	assert.Equal(t, w.guild.ID, bobSees.GuildID)
	require.NotNil(t, bobSees.Game)
	assert.Equal(t, "Doom", bobSees.Game.Name)

	carolSees := last(carolTr)
	assert.Equal(t, "idle", carolSees.Status)
	assert.Empty(t, carolSees.GuildID)

	for _, f := range eventsOf(aliceTr.Frames(), proto.EventPresenceUpdate) {
		assert.NotEqual(t, w.alice.ID, f.D.(proto.Presence).User.ID, "own presence is not echoed")
	}
}

func TestVersionedPresence(t *testing.T) {
	p := PresencePayload("u", Presence{Status: StatusOnline, Activity: &proto.Activity{Name: "Quake"}})
	assert.Nil(t, VersionedPresence(p, 6).Activities)
	assert.Len(t, VersionedPresence(p, 7).Activities, 1)

	hidden := PresencePayload("u", Presence{Status: StatusInvisible, Activity: &proto.Activity{Name: "Quake"}})
	assert.Equal(t, "offline", hidden.Status)
	assert.Nil(t, hidden.Game)
}

func BenchmarkDispatch(b *testing.B) {
	for _, recipients := range []int{10, 100, 500} {
		b.Run(fmt.Sprint(recipients), func(b *testing.B) {
			r := NewRegistry(RegistryOptions{ReplayBufferSize: b.N + 1}, nil)
			ids := make([]string, 0, recipients)
			for i := 0; i < recipients; i++ {
				id := fmt.Sprintf("u%d", i)
				ids = append(ids, id)
				_, err := r.Identify(context.Background(), IdentifyParams{UserID: id, Transport: discardTransport{}}, readyFor(nil))
				if err != nil {
					b.Fatal(err)
				}
			}
			d := NewDispatcher(r, nil, 32, nil)
			target := ToUsers(ids...)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := d.Dispatch(context.Background(), proto.EventMessageCreate, Static("payload"), target); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

type discardTransport struct{}

func (discardTransport) WriteFrame(context.Context, *proto.Frame) error { return nil }
func (discardTransport) Close(proto.CloseCode, string)                  {}
