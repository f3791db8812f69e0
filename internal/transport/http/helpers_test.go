package http

import (
	"bytes"
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/auth"
	"github.com/vovakirdan/legacy-gateway/internal/config"
	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/log"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/service/events"
	"github.com/vovakirdan/legacy-gateway/internal/service/messages"
	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/store/sqlite"
)

const testRelease = "october_5_2017"

type testEnv struct {
	server   *httptest.Server
	cfg      config.Config
	store    *sqlite.SQLiteStore
	auth     *auth.Service
	registry *core.Registry
	clock    *clock.Mock
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Gateway.URL = "ws://gateway.test/gateway"
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := log.Nop()
	mock := clock.NewMock()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	registry := core.NewRegistry(core.RegistryOptions{
		ReplayBufferSize: cfg.Gateway.ReplayBufferSize,
		ResumeTimeout:    cfg.Gateway.ResumeTimeout,
		MultiSession:     cfg.Gateway.MultiSession,
		Clock:            mock,
	}, logger)
	dispatcher := core.NewDispatcher(registry, st, cfg.Gateway.DispatchConcurrency, logger)
	registry.SetPresenceNotifier(core.NewPresenceBroadcaster(dispatcher, st, logger))
	ready := core.NewReadyBuilder(st, registry.Presence, cfg.Gateway.HeartbeatInterval.Milliseconds(), []string{"test"})

	router := NewRouter(Deps{
		Config:   cfg,
		Auth:     authService,
		Registry: registry,
		Ready:    ready,
		Messages: messages.New(st, events.New(dispatcher, ready)),
		Clock:    mock,
		Logger:   logger,
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	t.Cleanup(registry.Shutdown)

	return &testEnv{server: ts, cfg: cfg, store: st, auth: authService, registry: registry, clock: mock}
}

func (e *testEnv) register(t *testing.T, name string) (string, *store.Account) {
	t.Helper()
	token, account, err := e.auth.Register(context.Background(), name, name+"@example.com", "password123")
	require.NoError(t, err)
	return token, account
}

func (e *testEnv) wsURL(query string) string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/gateway" + query
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := stdhttp.Header{}
	header.Set("Cookie", "release_date="+testRelease)
	conn, _, err := websocket.Dial(ctx, e.wsURL(query), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// connect dials and consumes Hello.
func (e *testEnv) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn := e.dial(t, "")
	hello := readFrame(t, conn)
	require.Equal(t, proto.OpHello, hello.Op)
	return conn
}

// identify connects, identifies with token and returns the READY payload.
func (e *testEnv) identify(t *testing.T, token string) (*websocket.Conn, proto.ReadyData) {
	t.Helper()
	conn := e.connect(t)
	send(t, conn, proto.OpIdentify, proto.IdentifyData{Token: token})

	f := readFrame(t, conn)
	require.Equal(t, proto.OpDispatch, f.Op)
	require.Equal(t, proto.EventReady, f.Type())
	var ready proto.ReadyData
	require.NoError(t, json.Unmarshal(f.D, &ready))
	return conn, ready
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := stdhttp.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// wireFrame is an outbound frame with the payload left raw.
type wireFrame struct {
	Op proto.Op        `json:"op"`
	T  *string         `json:"t"`
	S  *int64          `json:"s"`
	D  json.RawMessage `json:"d"`
}

func (f wireFrame) Type() string {
	if f.T == nil {
		return ""
	}
	return *f.T
}

func (f wireFrame) Seq() int64 {
	if f.S == nil {
		return 0
	}
	return *f.S
}

func send(t *testing.T, conn *websocket.Conn, op proto.Op, d any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"op": op, "d": d})
	require.NoError(t, err)
	sendRaw(t, conn, data)
}

func sendRaw(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var f wireFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readDispatch skips non-dispatch frames and dispatches of other types.
func readDispatch(t *testing.T, conn *websocket.Conn, eventType string) wireFrame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if f.Op == proto.OpDispatch && f.Type() == eventType {
			return f
		}
	}
}

// readClose reads until the server closes and returns the close status.
func readClose(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}
