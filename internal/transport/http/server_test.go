package http

import (
	"context"
	"io"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
)

func decodeBody(t *testing.T, resp *stdhttp.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestGatewayDiscovery(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, stdhttp.MethodGet, "/api/gateway", "", nil)
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)

	var body GatewayResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "ws://gateway.test/gateway", body.URL)
}

func TestRegisterLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, stdhttp.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	var registered AuthResponse
	decodeBody(t, resp, &registered)
	require.NotEmpty(t, registered.Token)
	assert.Equal(t, "alice", registered.User.Username)

	resp = env.request(t, stdhttp.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "password123",
	})
	assert.Equal(t, stdhttp.StatusConflict, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodPost, "/api/auth/login", "", LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodPost, "/api/auth/login", "", LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	})
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	var loggedIn AuthResponse
	decodeBody(t, resp, &loggedIn)

	for _, header := range []string{loggedIn.Token, "Bearer " + loggedIn.Token} {
		resp = env.request(t, stdhttp.MethodGet, "/api/users/@me", header, nil)
		require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
		var me proto.SelfUser
		decodeBody(t, resp, &me)
		assert.Equal(t, registered.User.ID, me.ID)
		assert.Equal(t, "alice@example.com", me.Email)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, stdhttp.MethodGet, "/api/users/@me", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodGet, "/api/users/@me", "not-a-token", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, stdhttp.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Email:    "not-an-email",
		Password: "password123",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice"})
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestMessageEndpointsDispatchToGateway(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceToken, alice := env.register(t, "alice")
	bobToken, bob := env.register(t, "bob")
	g, err := env.store.CreateGuild(ctx, "hangout", alice.ID)
	require.NoError(t, err)
	require.NoError(t, env.store.AddMember(ctx, g.ID, bob.ID))
	channelID := g.ID

	bobConn, ready := env.identify(t, bobToken)
	require.Len(t, ready.Guilds, 1)

	resp := env.request(t, stdhttp.MethodPost, "/api/channels/"+channelID+"/messages", aliceToken, SendMessageRequest{
		Content: "hello bob",
		Nonce:   "n1",
	})
	require.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	var sent proto.Message
	decodeBody(t, resp, &sent)
	assert.Equal(t, "hello bob", sent.Content)

	f := readDispatch(t, bobConn, proto.EventMessageCreate)
	var msg proto.Message
	require.NoError(t, json.Unmarshal(f.D, &msg))
	assert.Equal(t, sent.ID, msg.ID)
	assert.Equal(t, alice.ID, msg.Author.ID)
	assert.Equal(t, channelID, msg.ChannelID)

	resp = env.request(t, stdhttp.MethodPost, "/api/channels/"+channelID+"/typing", aliceToken, nil)
	require.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)
	var typing proto.TypingStartData
	require.NoError(t, json.Unmarshal(readDispatch(t, bobConn, proto.EventTypingStart).D, &typing))
	assert.Equal(t, alice.ID, typing.UserID)

	resp = env.request(t, stdhttp.MethodPost, "/api/channels/"+channelID+"/messages/"+sent.ID+"/ack", bobToken, nil)
	require.Equal(t, stdhttp.StatusNoContent, resp.StatusCode)
	var ack proto.MessageAckData
	require.NoError(t, json.Unmarshal(readDispatch(t, bobConn, proto.EventMessageAck).D, &ack))
	assert.Equal(t, sent.ID, ack.MessageID)
}

func TestMessageEndpointErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceToken, alice := env.register(t, "alice")
	carolToken, _ := env.register(t, "carol")
	g, err := env.store.CreateGuild(ctx, "hangout", alice.ID)
	require.NoError(t, err)

	resp := env.request(t, stdhttp.MethodPost, "/api/channels/"+g.ID+"/messages", carolToken, SendMessageRequest{Content: "hi"})
	assert.Equal(t, stdhttp.StatusForbidden, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodPost, "/api/channels/404/messages", aliceToken, SendMessageRequest{Content: "hi"})
	assert.Equal(t, stdhttp.StatusNotFound, resp.StatusCode)

	resp = env.request(t, stdhttp.MethodPost, "/api/channels/"+g.ID+"/messages", aliceToken, SendMessageRequest{Content: "   "})
	assert.Equal(t, stdhttp.StatusBadRequest, resp.StatusCode)
}

func TestRateLimiterWindow(t *testing.T) {
	mock := clock.NewMock()
	rl := newRateLimiter(mock, 2, time.Minute)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	mock.Add(59 * time.Second)
	assert.False(t, rl.allow())

	mock.Add(time.Second)
	assert.True(t, rl.allow())
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(clock.NewMock(), 0, time.Minute)
	for range 1000 {
		if !rl.allow() {
			t.Fatalf("disabled limiter rejected an event")
		}
	}
}
